package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// resolveSharedLibrary locates the ONNX Runtime shared library. An explicit
// path wins; otherwise look in ./lib and next to the executable using the
// platform's library name.
func resolveSharedLibrary(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("onnxruntime library not found at %s: %w", explicit, err)
		}
		return explicit, nil
	}

	libName := "libonnxruntime.so"
	if runtime.GOOS == "darwin" {
		libName = "libonnxruntime.dylib"
	} else if runtime.GOOS == "windows" {
		libName = "onnxruntime.dll"
	}

	candidates := []string{filepath.Join("lib", libName)}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "lib", libName),
			filepath.Join(exeDir, libName),
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("onnxruntime library %s not found; set ONNX_LIB_PATH", libName)
}
