package restore

import (
	"fmt"
	"strings"
)

// Framework family identifiers.
const (
	FamilyNet          = "net"          // net5.0 and later
	FamilyNetCoreApp   = "netcoreapp"   // netcoreapp1.0 - 3.1
	FamilyNetStandard  = "netstandard"  // netstandard1.0 - 2.1
	FamilyNetFramework = "netframework" // net20 - net48x
)

// platformPackage is the runtime package implicitly referenced for managed
// runtime frameworks.
const platformPackage = "Microsoft.NETCore.App"

// Framework is a parsed target framework moniker such as net8.0,
// netstandard2.1, netcoreapp3.1 or net472.
type Framework struct {
	Family  string
	Version string
	Moniker string
}

// ParseFramework parses a target framework moniker. Monikers compare
// case-insensitively; the canonical lowercase form is retained.
func ParseFramework(moniker string) (Framework, error) {
	m := strings.ToLower(strings.TrimSpace(moniker))
	if m == "" {
		return Framework{}, fmt.Errorf("empty target framework moniker")
	}

	switch {
	case strings.HasPrefix(m, FamilyNetStandard):
		return framework(FamilyNetStandard, m, len(FamilyNetStandard))
	case strings.HasPrefix(m, FamilyNetCoreApp):
		return framework(FamilyNetCoreApp, m, len(FamilyNetCoreApp))
	case strings.HasPrefix(m, FamilyNet):
		// net8.0 is the modern runtime; net472 (no dot) is .NET Framework.
		rest := m[len(FamilyNet):]
		if strings.Contains(rest, ".") {
			return framework(FamilyNet, m, len(FamilyNet))
		}

		return framework(FamilyNetFramework, m, len(FamilyNet))
	default:
		return Framework{}, fmt.Errorf("unrecognized target framework moniker %q", moniker)
	}
}

func framework(family, moniker string, versionAt int) (Framework, error) {
	ver := moniker[versionAt:]
	if ver == "" {
		return Framework{}, fmt.Errorf("target framework moniker %q has no version", moniker)
	}

	return Framework{Family: family, Version: ver, Moniker: moniker}, nil
}

// Key returns the framework identifier used to key the assets manifest.
func (f Framework) Key() string { return f.Moniker }

// IsManagedRuntime reports whether resolving for this framework carries an
// implicit platform runtime dependency.
func (f Framework) IsManagedRuntime() bool {
	return f.Family == FamilyNet || f.Family == FamilyNetCoreApp
}

// PlatformDependency returns the implicit platform package reference for
// managed runtime frameworks, and false otherwise.
func (f Framework) PlatformDependency() (PackageReference, bool) {
	if !f.IsManagedRuntime() {
		return PackageReference{}, false
	}

	ver := f.Version
	if !strings.Contains(ver, ".") {
		ver += ".0"
	}

	return PackageReference{ID: platformPackage, Range: ">=" + ver + ".0"}, true
}
