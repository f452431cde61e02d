package variant

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver"
)

// Catalog is the full build configuration: app identifiers, flavors, build
// types and the properties file backing each signing identity.
type Catalog struct {
	App        AppInfo
	Flavors    []Flavor
	BuildTypes []BuildTypeConfig
	// Identities maps a signing identity name to its properties file path.
	Identities map[string]string
}

// DebugIdentity is the signing identity shared by every debug build.
const DebugIdentity = "debug"

// DefaultCatalog returns the catalog of the Pos Manager application.
func DefaultCatalog() Catalog {
	const appName = "Pos Manager"

	flavor := func(name, idSuffix, versionSuffix, displayName string) Flavor {
		return Flavor{
			Name:                name,
			Dimension:           "flavor",
			ApplicationIDSuffix: idSuffix,
			VersionNameSuffix:   versionSuffix,
			DisplayName:         displayName,
			VersionCode:         1,
			VersionName:         "1.0.0",
			SigningIdentity:     name + "Release",
			AssetsDir:           "src/" + name + "/",
		}
	}

	return Catalog{
		App: AppInfo{
			Name:       appName,
			BundleID:   "com.izoe.pos_manager",
			Namespace:  "com.izoe.pos_manager",
			MinSDK:     24,
			TargetSDK:  35,
			CompileSDK: 35,
			NDKVersion: "27.0.12077973",
			JavaTarget: "11",
		},
		Flavors: []Flavor{
			flavor("dev", ".dev", "-dev", appName+" Dev"),
			flavor("prelive", ".prelive", "-prelive", appName+" Prelive"),
			flavor("prod", ".win", "", appName),
		},
		BuildTypes: []BuildTypeConfig{
			{Name: BuildTypeDebug, Debuggable: true, SigningIdentity: DebugIdentity},
			{Name: BuildTypeRelease, MinifyEnabled: true, ShrinkResources: true},
		},
		Identities: map[string]string{
			DebugIdentity:    "key_properties/debug/debug.properties",
			"devRelease":     "key_properties/release/dev.properties",
			"preliveRelease": "key_properties/release/prelive.properties",
			"prodRelease":    "key_properties/release/prod.properties",
		},
	}
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := Catalog{
		App:        c.App,
		Flavors:    append([]Flavor(nil), c.Flavors...),
		BuildTypes: append([]BuildTypeConfig(nil), c.BuildTypes...),
		Identities: make(map[string]string, len(c.Identities)),
	}
	for k, v := range c.Identities {
		out.Identities[k] = v
	}
	return out
}

// Flavor looks up a flavor by name.
func (c Catalog) Flavor(name string) (Flavor, error) {
	for _, f := range c.Flavors {
		if f.Name == name {
			return f, nil
		}
	}
	return Flavor{}, fmt.Errorf("%w: %q", ErrUnknownFlavor, name)
}

// BuildType looks up a build type by name.
func (c Catalog) BuildType(name BuildType) (BuildTypeConfig, error) {
	for _, bt := range c.BuildTypes {
		if bt.Name == name {
			return bt, nil
		}
	}
	return BuildTypeConfig{}, fmt.Errorf("%w: %q", ErrUnknownBuildType, name)
}

// IdentityFor returns the signing identity bound to a flavor and build type.
func (c Catalog) IdentityFor(f Flavor, bt BuildTypeConfig) string {
	if bt.SigningIdentity != "" {
		return bt.SigningIdentity
	}
	return f.SigningIdentity
}

// IdentityNames returns the declared identity names in sorted order.
func (c Catalog) IdentityNames() []string {
	names := make([]string, 0, len(c.Identities))
	for name := range c.Identities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the catalog for structural errors before any file is read.
func (c Catalog) Validate() error {
	if c.App.BundleID == "" {
		return fmt.Errorf("%w: bundle id is required", ErrInvalidCatalog)
	}
	if c.App.MinSDK <= 0 || c.App.TargetSDK < c.App.MinSDK {
		return fmt.Errorf("%w: sdk range min=%d target=%d", ErrInvalidCatalog, c.App.MinSDK, c.App.TargetSDK)
	}
	if len(c.Flavors) == 0 {
		return fmt.Errorf("%w: at least one flavor is required", ErrInvalidCatalog)
	}
	if len(c.BuildTypes) == 0 {
		return fmt.Errorf("%w: at least one build type is required", ErrInvalidCatalog)
	}

	seenTypes := make(map[BuildType]struct{}, len(c.BuildTypes))
	for _, bt := range c.BuildTypes {
		if bt.Name == "" {
			return fmt.Errorf("%w: build type without name", ErrInvalidCatalog)
		}
		if _, dup := seenTypes[bt.Name]; dup {
			return fmt.Errorf("%w: duplicate build type %q", ErrInvalidCatalog, bt.Name)
		}
		seenTypes[bt.Name] = struct{}{}
		if bt.SigningIdentity != "" {
			if _, ok := c.Identities[bt.SigningIdentity]; !ok {
				return fmt.Errorf("%w: build type %q references unknown identity %q", ErrInvalidCatalog, bt.Name, bt.SigningIdentity)
			}
		}
	}

	seenFlavors := make(map[string]struct{}, len(c.Flavors))
	releaseOwners := make(map[string]string, len(c.Flavors))
	for _, f := range c.Flavors {
		if f.Name == "" {
			return fmt.Errorf("%w: flavor without name", ErrInvalidCatalog)
		}
		if _, dup := seenFlavors[f.Name]; dup {
			return fmt.Errorf("%w: duplicate flavor %q", ErrInvalidCatalog, f.Name)
		}
		seenFlavors[f.Name] = struct{}{}

		if f.VersionCode <= 0 {
			return fmt.Errorf("%w: flavor %q version code must be positive, got %d", ErrInvalidCatalog, f.Name, f.VersionCode)
		}
		if _, err := semver.NewVersion(f.VersionName); err != nil {
			return fmt.Errorf("%w: flavor %q version name %q: %v", ErrInvalidCatalog, f.Name, f.VersionName, err)
		}

		for _, bt := range c.BuildTypes {
			identity := c.IdentityFor(f, bt)
			if identity == "" {
				return fmt.Errorf("%w: variant %s has no signing identity", ErrInvalidCatalog, VariantName(f.Name, bt.Name))
			}
			if _, ok := c.Identities[identity]; !ok {
				return fmt.Errorf("%w: variant %s references unknown identity %q", ErrInvalidCatalog, VariantName(f.Name, bt.Name), identity)
			}
			if bt.SigningIdentity != "" {
				continue
			}
			if owner, taken := releaseOwners[identity]; taken && owner != f.Name {
				return fmt.Errorf("%w: flavors %q and %q share release identity %q", ErrInvalidCatalog, owner, f.Name, identity)
			}
			releaseOwners[identity] = f.Name
		}
	}

	return nil
}
