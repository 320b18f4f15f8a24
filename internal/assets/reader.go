// Package assets reads the restore engine's output manifest and flattens it
// into compile and runtime artifact path lists for one target framework.
package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the conventional manifest name under the restore output path.
const FileName = "project.assets.json"

// placeholder is the relative-path basename meaning "no real asset"; such
// entries are excluded from the output lists. The compare is exact.
const placeholder = "_._"

// Resolved holds flattened artifact paths for one target framework, in
// manifest document order.
type Resolved struct {
	Compile []string
	Runtime []string
}

// PathIn returns the manifest path under a restore output directory.
func PathIn(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Read parses the manifest at manifestPath and extracts compile/runtime paths
// for frameworkKey. Each package's install root is rootDir joined with the
// manifest's "id/version" package key. The parse is a streaming token walk so
// output order follows document order and, when a framework key appears twice,
// the first occurrence wins. An absent framework key or an absent section is
// not an error; the corresponding output is simply empty.
func Read(manifestPath, rootDir, frameworkKey string) (Resolved, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return Resolved{}, err
	}

	defer f.Close()

	dec := json.NewDecoder(f)

	if err := expectDelim(dec, '{'); err != nil {
		return Resolved{}, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	var res Resolved

	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return Resolved{}, fmt.Errorf("parse %s: %w", manifestPath, err)
		}

		if key != "targets" {
			if err := skipValue(dec); err != nil {
				return Resolved{}, fmt.Errorf("parse %s: %w", manifestPath, err)
			}

			continue
		}

		res, err = readTargets(dec, rootDir, frameworkKey)
		if err != nil {
			return Resolved{}, fmt.Errorf("parse %s: %w", manifestPath, err)
		}
	}

	return res, nil
}

// readTargets walks the framework-keyed targets object. Only the first exact
// frameworkKey match contributes; everything else is consumed and dropped.
func readTargets(dec *json.Decoder, rootDir, frameworkKey string) (Resolved, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return Resolved{}, err
	}

	var (
		res     Resolved
		matched bool
	)

	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return Resolved{}, err
		}

		if matched || key != frameworkKey {
			if err := skipValue(dec); err != nil {
				return Resolved{}, err
			}

			continue
		}

		matched = true

		if res, err = readFramework(dec, rootDir); err != nil {
			return Resolved{}, err
		}
	}

	// closing '}' of targets
	_, err := dec.Token()

	return res, err
}

// readFramework walks one framework's package map.
func readFramework(dec *json.Decoder, rootDir string) (Resolved, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return Resolved{}, err
	}

	var res Resolved

	for dec.More() {
		pkgKey, err := stringToken(dec)
		if err != nil {
			return Resolved{}, err
		}

		root := filepath.Join(rootDir, filepath.FromSlash(pkgKey))

		if err := readPackage(dec, root, &res); err != nil {
			return Resolved{}, err
		}
	}

	_, err := dec.Token()

	return res, err
}

// readPackage walks one package object, collecting its compile and runtime
// sections. Other sections (dependencies, frameworkAssemblies, ...) are
// skipped.
func readPackage(dec *json.Decoder, root string, res *Resolved) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		section, err := stringToken(dec)
		if err != nil {
			return err
		}

		switch section {
		case "compile":
			if err := readSection(dec, root, &res.Compile); err != nil {
				return err
			}
		case "runtime":
			if err := readSection(dec, root, &res.Runtime); err != nil {
				return err
			}
		default:
			if err := skipValue(dec); err != nil {
				return err
			}
		}
	}

	_, err := dec.Token()

	return err
}

// readSection walks a path->metadata map, appending real asset paths in
// document order and dropping placeholder entries.
func readSection(dec *json.Decoder, root string, out *[]string) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		rel, err := stringToken(dec)
		if err != nil {
			return err
		}

		// metadata object; contents are irrelevant here
		if err := skipValue(dec); err != nil {
			return err
		}

		if baseName(rel) == placeholder {
			continue
		}

		*out = append(*out, filepath.Join(root, filepath.FromSlash(rel)))
	}

	_, err := dec.Token()

	return err
}

// baseName returns the final element of a forward-slash manifest path.
func baseName(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}

	return rel
}

// skipValue consumes exactly one JSON value of any shape.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}

	for dec.More() {
		if err := skipValue(dec); err != nil {
			return err
		}
	}

	_, err = dec.Token() // closing delim

	return err
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}

	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}

	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %v", tok)
	}

	return s, nil
}
