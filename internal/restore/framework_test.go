package restore

import "testing"

func TestParseFramework(t *testing.T) {
	cases := []struct {
		moniker string
		family  string
		version string
		managed bool
	}{
		{"net8.0", FamilyNet, "8.0", true},
		{"NET6.0", FamilyNet, "6.0", true},
		{"netcoreapp3.1", FamilyNetCoreApp, "3.1", true},
		{"netstandard2.1", FamilyNetStandard, "2.1", false},
		{"net472", FamilyNetFramework, "472", false},
		{"net48", FamilyNetFramework, "48", false},
	}

	for _, tc := range cases {
		t.Run(tc.moniker, func(t *testing.T) {
			fw, err := ParseFramework(tc.moniker)
			if err != nil {
				t.Fatalf("parse %s: %v", tc.moniker, err)
			}

			if fw.Family != tc.family || fw.Version != tc.version {
				t.Fatalf("got %s/%s, want %s/%s", fw.Family, fw.Version, tc.family, tc.version)
			}

			if fw.IsManagedRuntime() != tc.managed {
				t.Fatalf("managed = %v, want %v", fw.IsManagedRuntime(), tc.managed)
			}
		})
	}
}

func TestParseFramework_Invalid(t *testing.T) {
	for _, moniker := range []string{"", "  ", "java8", "net", "netstandard"} {
		if _, err := ParseFramework(moniker); err == nil {
			t.Fatalf("expected error for %q", moniker)
		}
	}
}

func TestFramework_PlatformDependency(t *testing.T) {
	fw, err := ParseFramework("net8.0")
	if err != nil {
		t.Fatal(err)
	}

	dep, ok := fw.PlatformDependency()
	if !ok {
		t.Fatal("net8.0 must carry the implicit platform dependency")
	}

	if dep.ID != "Microsoft.NETCore.App" || dep.Range != ">=8.0.0" {
		t.Fatalf("unexpected platform dependency: %+v", dep)
	}

	fw, err = ParseFramework("net472")
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := fw.PlatformDependency(); ok {
		t.Fatal("net472 must not carry a platform dependency")
	}
}
