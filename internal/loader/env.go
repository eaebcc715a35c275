package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"

	"github.com/Biometria-se/grizzly-lsp/internal/errs"
	"github.com/Biometria-se/grizzly-lsp/internal/logging"
)

// EnvPreparer provisions the workspace-local virtual environment the step
// library runs in.
type EnvPreparer struct {
	Runner Executor

	// VenvDir is the workspace-local virtual environment path.
	VenvDir string
	// RequirementsFile is hashed to detect a stale environment; empty means
	// "never reinstall once created".
	RequirementsFile string
	// ExtraIndexURL is forwarded to pip as --extra-index-url, when set.
	ExtraIndexURL string
}

const stampFileName = ".grizzly-ls-requirements.sha256"

// Prepare ensures VenvDir exists and has current dependencies installed,
// guarded by a lockfile so two concurrent grizzly-ls processes (or a
// rebuild racing an editor-triggered reinstall) never corrupt the same
// environment. It is a no-op if the environment
// already matches the requirements file's hash.
func (p *EnvPreparer) Prepare(ctx context.Context) error {
	lock, err := lockfile.New(filepath.Join(p.VenvDir + ".lock"))
	if err != nil {
		return errs.Wrap(errs.SourceLoadFailed, "constructing venv lockfile", err)
	}
	if err := lock.TryLock(); err != nil {
		return errs.Wrap(errs.SourceLoadFailed, "acquiring venv lock (another process is provisioning it)", err)
	}
	defer lock.Unlock()

	log := logging.Named("loader").Sugar()

	stale, err := p.isStale()
	if err != nil {
		return errs.Wrap(errs.SourceLoadFailed, "checking venv staleness", err)
	}
	if !stale {
		log.Debugw("venv up to date, skipping provisioning", "venv", p.VenvDir)
		return nil
	}

	if _, err := os.Stat(p.VenvDir); os.IsNotExist(err) {
		log.Infow("creating virtual environment", "venv", p.VenvDir)
		if err := p.Runner.Run(ctx, filepath.Dir(p.VenvDir), "python3", []string{"-m", "venv", p.VenvDir}, func(string) {}); err != nil {
			return errs.Wrap(errs.SourceLoadFailed, "creating virtual environment", err)
		}
	}

	if p.RequirementsFile != "" {
		log.Infow("installing requirements", "requirements", p.RequirementsFile)
		args := []string{"install", "-r", p.RequirementsFile}
		if p.ExtraIndexURL != "" {
			args = append(args, "--extra-index-url", p.ExtraIndexURL)
		}
		if err := p.Runner.Run(ctx, filepath.Dir(p.VenvDir), p.pipPath(), args, func(string) {}); err != nil {
			return errs.Wrap(errs.SourceLoadFailed, "installing step-library requirements", err)
		}
	}

	return p.writeStamp()
}

// PythonPath returns the interpreter inside VenvDir.
func (p *EnvPreparer) PythonPath() string {
	return filepath.Join(p.VenvDir, "bin", "python3")
}

func (p *EnvPreparer) pipPath() string {
	return filepath.Join(p.VenvDir, "bin", "pip")
}

func (p *EnvPreparer) isStale() (bool, error) {
	if p.RequirementsFile == "" {
		_, err := os.Stat(p.VenvDir)
		return os.IsNotExist(err), nil
	}
	want, err := hashFile(p.RequirementsFile)
	if err != nil {
		return true, err
	}
	got, err := os.ReadFile(p.stampPath())
	if err != nil {
		return true, nil
	}
	return string(got) != want, nil
}

func (p *EnvPreparer) writeStamp() error {
	if p.RequirementsFile == "" {
		return nil
	}
	hash, err := hashFile(p.RequirementsFile)
	if err != nil {
		return err
	}
	return os.WriteFile(p.stampPath(), []byte(hash), 0o644)
}

func (p *EnvPreparer) stampPath() string {
	return filepath.Join(p.VenvDir, stampFileName)
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
