package loader

import (
	"embed"
	"os"
	"path/filepath"
)

//go:embed harvest.py
var harvestScript embed.FS

// writeHarvestScript materializes the embedded harvester into workDir so
// the Python interpreter can execute it as a real file, returning its path
// and a cleanup func that removes it.
func writeHarvestScript(workDir string) (path string, cleanup func(), err error) {
	data, err := harvestScript.ReadFile("harvest.py")
	if err != nil {
		return "", nil, err
	}
	path = filepath.Join(workDir, ".grizzly-ls-harvest.py")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, err
	}
	return path, func() { os.Remove(path) }, nil
}
