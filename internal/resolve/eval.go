package resolve

import (
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/masonbuild/mason/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// scopeContext builds the HCL evaluation context for one scope. Every entity
// registered in the scope appears under its reference root; absent
// subprojects and variables surface as unknown values so downstream
// expressions resolve without error and consumers can omit them.
func scopeContext(p *model.Project, scope string) *hcl.EvalContext {
	generators := make(map[string]cty.Value)
	for _, g := range p.Generators() {
		if g.Scope != scope {
			continue
		}
		outs := make([]cty.Value, len(g.Outputs))
		for i, out := range g.Outputs {
			outs[i] = cty.StringVal(out)
		}
		generators[g.Name] = cty.ObjectVal(map[string]cty.Value{
			"kind":    cty.StringVal("generator"),
			"outputs": cty.ListVal(outs),
		})
	}

	libraries := make(map[string]cty.Value)
	executables := make(map[string]cty.Value)
	for _, t := range p.Targets() {
		if t.Scope != scope {
			continue
		}
		marker := cty.ObjectVal(map[string]cty.Value{
			"kind": cty.StringVal(string(t.Kind)),
			"id":   cty.StringVal(t.ID()),
			"path": cty.StringVal(t.OutputPath),
		})
		switch t.Kind {
		case model.KindLibrary:
			libraries[t.Name] = marker
		case model.KindExecutable:
			executables[t.Name] = marker
		}
	}

	dependencies := make(map[string]cty.Value)
	for _, d := range p.ExternalDeps() {
		if d.Scope != scope {
			continue
		}
		if d.Absent {
			dependencies[d.Name] = cty.ObjectVal(map[string]cty.Value{
				"kind":  cty.StringVal("absent"),
				"found": cty.False,
			})
			continue
		}
		dependencies[d.Name] = cty.ObjectVal(map[string]cty.Value{
			"kind":  cty.StringVal("system"),
			"link":  cty.StringVal(d.Link),
			"path":  cty.StringVal(d.Probe),
			"found": cty.True,
		})
	}

	subprojects := make(map[string]cty.Value)
	for _, s := range p.Subprojects() {
		if s.DeclaredIn != scope {
			continue
		}
		if s.Absent {
			subprojects[s.Name] = cty.DynamicVal
			continue
		}
		vars := make(map[string]cty.Value)
		for _, name := range s.VarNames() {
			v, _ := s.Var(name)
			vars[name] = variableValue(v)
		}
		subprojects[s.Name] = cty.ObjectVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"generator":  cty.ObjectVal(generators),
			"library":    cty.ObjectVal(libraries),
			"executable": cty.ObjectVal(executables),
			"dependency": cty.ObjectVal(dependencies),
			"subproject": cty.ObjectVal(subprojects),
		},
	}
}

// variableValue renders one published variable as a cty value.
func variableValue(v model.Variable) cty.Value {
	switch v.Kind {
	case model.VariableLibrary:
		return cty.ObjectVal(map[string]cty.Value{
			"kind": cty.StringVal("library"),
			"id":   cty.StringVal(v.TargetID),
			"path": cty.StringVal(v.Path),
		})
	case model.VariableIncludeDirs:
		if len(v.Dirs) == 0 {
			return cty.ListValEmpty(cty.String)
		}
		dirs := make([]cty.Value, len(v.Dirs))
		for i, d := range v.Dirs {
			dirs[i] = cty.StringVal(d)
		}
		return cty.ListVal(dirs)
	case model.VariableString:
		return cty.StringVal(v.Str)
	default:
		return cty.DynamicVal
	}
}

// validateRefs walks an expression's variable traversals before evaluation
// so unknown references fail with typed errors instead of generic
// diagnostics. Absent subprojects accept any variable name.
func validateRefs(p *model.Project, scope, consumerID string, expr hcl.Expression) error {
	for _, tr := range expr.Variables() {
		root := tr.RootName()
		switch root {
		case "generator":
			name, ok := attrStep(tr, 1)
			if !ok {
				return model.NewUnresolvedReferenceError(consumerID, root)
			}
			if _, found := p.Generator(scope, name); !found {
				return model.NewUnresolvedReferenceError(consumerID, "generator."+name)
			}
		case "library", "executable":
			name, ok := attrStep(tr, 1)
			if !ok {
				return model.NewUnresolvedReferenceError(consumerID, root)
			}
			t, found := p.Target(scope, name)
			if !found || string(t.Kind) != root {
				return model.NewUnresolvedReferenceError(consumerID, root+"."+name)
			}
		case "dependency":
			name, ok := attrStep(tr, 1)
			if !ok {
				return model.NewUnresolvedReferenceError(consumerID, root)
			}
			if _, found := p.ExternalDep(scope, name); !found {
				return model.NewUnresolvedReferenceError(consumerID, "dependency."+name)
			}
		case "subproject":
			name, ok := attrStep(tr, 1)
			if !ok {
				return model.NewUnresolvedReferenceError(consumerID, root)
			}
			s, found := p.Subproject(name)
			if !found || s.DeclaredIn != scope {
				return model.NewSubprojectNotFoundError(name, "")
			}
			if s.Absent {
				continue
			}
			if varName, ok := attrStep(tr, 2); ok {
				if _, err := s.Var(varName); err != nil {
					return err
				}
			}
		default:
			return model.NewUnresolvedReferenceError(consumerID, root)
		}
	}
	return nil
}

// attrStep extracts the attribute name at position i of a traversal.
func attrStep(tr hcl.Traversal, i int) (string, bool) {
	if len(tr) <= i {
		return "", false
	}
	attr, ok := tr[i].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return attr.Name, true
}

// markerKind classifies a reference marker object by its kind attribute.
func markerKind(v cty.Value) (string, bool) {
	if !v.IsKnown() || v.IsNull() || !v.Type().IsObjectType() || !v.Type().HasAttribute("kind") {
		return "", false
	}
	kind := v.GetAttr("kind")
	if !kind.IsKnown() || kind.IsNull() || kind.Type() != cty.String {
		return "", false
	}
	return kind.AsString(), true
}

// getAttrString reads a known string attribute off a marker object.
func getAttrString(v cty.Value, name string) string {
	if !v.Type().HasAttribute(name) {
		return ""
	}
	attr := v.GetAttr(name)
	if !attr.IsKnown() || attr.IsNull() || attr.Type() != cty.String {
		return ""
	}
	return attr.AsString()
}

// flattenSources flattens an evaluated sources expression into an ordered
// file list. Generator references splice their declared outputs in place.
func flattenSources(consumerID string, v cty.Value) ([]string, error) {
	var out []string
	var walk func(v cty.Value) error
	walk = func(v cty.Value) error {
		switch {
		case !v.IsKnown():
			return model.NewInvalidDeclarationError(consumerID, "sources cannot reference an absent subproject")
		case v.IsNull():
			return model.NewInvalidDeclarationError(consumerID, "sources contain a null value")
		case v.Type() == cty.String:
			out = append(out, v.AsString())
		case v.Type().IsObjectType():
			if kind, ok := markerKind(v); ok && kind == "generator" {
				return walk(v.GetAttr("outputs"))
			}
			return model.NewInvalidDeclarationError(consumerID, "sources must be file paths or generator references")
		case v.CanIterateElements():
			for it := v.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				if err := walk(ev); err != nil {
					return err
				}
			}
		default:
			return model.NewInvalidDeclarationError(consumerID, "sources must be file paths or generator references")
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, model.NewInvalidDeclarationError(consumerID, "sources list is empty")
	}
	return out, nil
}

// flattenIncludes flattens an evaluated includes expression into a directory
// list. Absent values drop out silently so optional subprojects do not break
// the consuming target.
func flattenIncludes(consumerID string, v cty.Value) ([]string, error) {
	var out []string
	var walk func(v cty.Value) error
	walk = func(v cty.Value) error {
		switch {
		case !v.IsKnown():
			return nil
		case v.IsNull():
			return model.NewInvalidDeclarationError(consumerID, "includes contain a null value")
		case v.Type() == cty.String:
			out = append(out, v.AsString())
		case v.Type().IsObjectType():
			if kind, ok := markerKind(v); ok && kind == "absent" {
				return nil
			}
			return model.NewInvalidDeclarationError(consumerID, "includes must be directory paths")
		case v.CanIterateElements():
			for it := v.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				if err := walk(ev); err != nil {
					return err
				}
			}
		default:
			return model.NewInvalidDeclarationError(consumerID, "includes must be directory paths")
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}
	return out, nil
}

// flattenLinks flattens an evaluated links expression into link dependencies.
// Plain strings name system libraries; markers carry library targets and
// probed external dependencies; absent values drop out so the link edge is
// omitted.
func flattenLinks(consumerID string, v cty.Value) ([]model.LinkDep, error) {
	var out []model.LinkDep
	var walk func(v cty.Value) error
	walk = func(v cty.Value) error {
		switch {
		case !v.IsKnown():
			return nil
		case v.IsNull():
			return model.NewInvalidDeclarationError(consumerID, "links contain a null value")
		case v.Type() == cty.String:
			out = append(out, model.LinkDep{Kind: model.LinkSystem, Name: v.AsString()})
		case v.Type().IsObjectType():
			kind, ok := markerKind(v)
			if !ok {
				return model.NewInvalidDeclarationError(consumerID, "links must be library references or library names")
			}
			switch kind {
			case "library":
				out = append(out, model.LinkDep{
					Kind:     model.LinkTarget,
					TargetID: getAttrString(v, "id"),
					Path:     getAttrString(v, "path"),
				})
			case "system":
				out = append(out, model.LinkDep{
					Kind: model.LinkSystem,
					Name: getAttrString(v, "link"),
					Path: linkableArtifact(getAttrString(v, "path")),
				})
			case "absent":
				return nil
			case "executable":
				return model.NewInvalidDeclarationError(consumerID, "cannot link an executable target")
			default:
				return model.NewInvalidDeclarationError(consumerID, "links must be library references or library names")
			}
		case v.CanIterateElements():
			for it := v.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				if err := walk(ev); err != nil {
					return err
				}
			}
		default:
			return model.NewInvalidDeclarationError(consumerID, "links must be library references or library names")
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}
	return out, nil
}

// linkableArtifact keeps a dependency's probe path on the link line only
// when the probe is itself a library. Header probes decide presence and
// nothing more.
func linkableArtifact(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".a", ".so", ".dylib", ".lib":
		return path
	}
	return ""
}

// testTargetID extracts the executable target ID a test points at.
func testTargetID(testID string, v cty.Value) (string, error) {
	if kind, ok := markerKind(v); ok && kind == "executable" {
		return getAttrString(v, "id"), nil
	}
	return "", model.NewInvalidDeclarationError(testID, "test target must be an executable target")
}

// publishValue validates one published value against the closed variable
// variants: library handle, include directory list, or string. Unknown
// values propagate as the absent sentinel.
func publishValue(sub *model.Subproject, publishID string, v cty.Value) (model.Variable, error) {
	switch {
	case !v.IsKnown():
		return model.AbsentVariable(), nil
	case v.IsNull():
		return model.Variable{}, model.NewInvalidDeclarationError(publishID, "published value is null")
	case v.Type() == cty.String:
		return model.Variable{Kind: model.VariableString, Str: v.AsString()}, nil
	case v.Type().IsObjectType():
		kind, ok := markerKind(v)
		if ok && kind == "library" {
			return model.Variable{
				Kind:     model.VariableLibrary,
				TargetID: getAttrString(v, "id"),
				Path:     getAttrString(v, "path"),
			}, nil
		}
		if ok && kind == "absent" {
			return model.AbsentVariable(), nil
		}
		return model.Variable{}, model.NewInvalidDeclarationError(publishID, "published value must be a library handle, include directory list, or string")
	case v.CanIterateElements():
		var dirs []string
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if !ev.IsKnown() || ev.IsNull() || ev.Type() != cty.String {
				return model.Variable{}, model.NewInvalidDeclarationError(publishID, "include directory lists may only contain strings")
			}
			dir := ev.AsString()
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(sub.Dir, dir)
			}
			dirs = append(dirs, dir)
		}
		return model.Variable{Kind: model.VariableIncludeDirs, Dirs: dirs}, nil
	default:
		return model.Variable{}, model.NewInvalidDeclarationError(publishID, "published value must be a library handle, include directory list, or string")
	}
}
