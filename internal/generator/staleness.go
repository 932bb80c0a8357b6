package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// stampDir holds per-generator invocation stamps inside a scope's build
// directory.
const stampDir = ".mason"

// Freshness is the outcome of a staleness check.
type Freshness struct {
	Fresh  bool
	Reason string
}

// Check decides whether a generator needs to run. A run is fresh only when
// every declared output exists, no output predates the input, and the
// recorded stamp matches the current program, arguments, environment and
// input content. Timestamps alone miss command edits, so both checks apply.
func (e *Executor) Check(inv Invocation) (Freshness, error) {
	inputInfo, err := os.Stat(inv.InputPath)
	if err != nil {
		return Freshness{}, err
	}

	for _, out := range inv.Outputs {
		info, err := os.Stat(out)
		if errors.Is(err, os.ErrNotExist) {
			return Freshness{Reason: "missing output " + filepath.Base(out)}, nil
		}
		if err != nil {
			return Freshness{}, err
		}
		if info.ModTime().Before(inputInfo.ModTime()) {
			return Freshness{Reason: "output " + filepath.Base(out) + " older than input"}, nil
		}
	}

	want, err := e.invocationHash(inv)
	if err != nil {
		return Freshness{}, err
	}
	recorded, err := os.ReadFile(stampPath(inv))
	if errors.Is(err, os.ErrNotExist) {
		return Freshness{Reason: "no previous run recorded"}, nil
	}
	if err != nil {
		return Freshness{}, err
	}
	if strings.TrimSpace(string(recorded)) != want {
		return Freshness{Reason: "command line or input changed"}, nil
	}
	return Freshness{Fresh: true, Reason: "up to date"}, nil
}

// invocationHash digests everything that influences a run: the program, the
// substituted arguments, the declared environment, the input content and the
// output set.
func (e *Executor) invocationHash(inv Invocation) (string, error) {
	inputDigest, err := e.inputDigest(inv.InputPath)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	io.WriteString(h, inv.Step.Program)
	for _, arg := range substituteArgs(inv) {
		io.WriteString(h, "\x00"+arg)
	}
	for _, kv := range sortedEnv(inv.Step.Env) {
		io.WriteString(h, "\x00"+kv)
	}
	io.WriteString(h, "\x00"+inputDigest)
	for _, out := range inv.Outputs {
		io.WriteString(h, "\x00"+out)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// inputDigest hashes a file's content, memoized by path, mtime and size.
func (e *Executor) inputDigest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	if digest, ok := e.digests.Get(key); ok {
		return digest, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	digest := hex.EncodeToString(h.Sum(nil))
	e.digests.Add(key, digest)
	return digest, nil
}

func stampPath(inv Invocation) string {
	return filepath.Join(inv.BuildDir, stampDir, inv.Step.Name+".stamp")
}

// writeStamp records the just-completed invocation's hash.
func (e *Executor) writeStamp(inv Invocation) error {
	hash, err := e.invocationHash(inv)
	if err != nil {
		return err
	}
	path := stampPath(inv)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hash+"\n"), 0o644)
}
