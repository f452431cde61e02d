package variant

import (
	"fmt"
	"strings"

	"github.com/izoe/variant-signer/internal/signing"
)

// BuildType names the optimisation and signing policy of a build.
type BuildType string

const (
	BuildTypeDebug   BuildType = "debug"
	BuildTypeRelease BuildType = "release"
)

// AppInfo holds the identifiers and SDK targets shared by every flavor.
type AppInfo struct {
	Name       string `yaml:"name" json:"name"`
	BundleID   string `yaml:"bundle_id" json:"bundleId"`
	Namespace  string `yaml:"namespace" json:"namespace"`
	MinSDK     int    `yaml:"min_sdk" json:"minSdk"`
	TargetSDK  int    `yaml:"target_sdk" json:"targetSdk"`
	CompileSDK int    `yaml:"compile_sdk" json:"compileSdk"`
	NDKVersion string `yaml:"ndk_version" json:"ndkVersion"`
	JavaTarget string `yaml:"java_target" json:"javaTarget"`
}

// Flavor is a named product variant. Flavors are fixed once the catalog is built.
type Flavor struct {
	Name                string `yaml:"name" json:"name"`
	Dimension           string `yaml:"dimension" json:"dimension"`
	ApplicationIDSuffix string `yaml:"application_id_suffix" json:"applicationIdSuffix,omitempty"`
	VersionNameSuffix   string `yaml:"version_name_suffix" json:"versionNameSuffix,omitempty"`
	DisplayName         string `yaml:"display_name" json:"displayName,omitempty"`
	VersionCode         int    `yaml:"version_code" json:"versionCode"`
	VersionName         string `yaml:"version_name" json:"versionName"`
	SigningIdentity     string `yaml:"signing_identity" json:"signingIdentity"`
	AssetsDir           string `yaml:"assets_dir" json:"assetsDir,omitempty"`
}

// BuildTypeConfig describes one build type. An empty SigningIdentity means the
// flavor's release identity is used.
type BuildTypeConfig struct {
	Name            BuildType `yaml:"name" json:"name"`
	Debuggable      bool      `yaml:"debuggable" json:"debuggable"`
	MinifyEnabled   bool      `yaml:"minify" json:"minifyEnabled"`
	ShrinkResources bool      `yaml:"shrink_resources" json:"shrinkResources"`
	SigningIdentity string    `yaml:"signing_identity" json:"signingIdentity,omitempty"`
}

// ResourceValue is a generated Android resource such as string/app_name.
type ResourceValue struct {
	Type  string `yaml:"type" json:"type"`
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Variant is the combination of one flavor and one build type with its
// resolved signing credential.
type Variant struct {
	Name            string             `yaml:"name" json:"name"`
	Flavor          Flavor             `yaml:"flavor" json:"flavor"`
	BuildType       BuildTypeConfig    `yaml:"build_type" json:"buildType"`
	ApplicationID   string             `yaml:"application_id" json:"applicationId"`
	VersionCode     int                `yaml:"version_code" json:"versionCode"`
	VersionName     string             `yaml:"version_name" json:"versionName"`
	Resources       []ResourceValue    `yaml:"resources" json:"resources"`
	SigningIdentity string             `yaml:"signing_identity" json:"signingIdentity"`
	Credential      signing.Credential `yaml:"credential" json:"credential"`
	OutputFile      string             `yaml:"output_file" json:"outputFile"`
}

// DisplayName returns the string/app_name resource value.
func (v Variant) DisplayName() string {
	for _, res := range v.Resources {
		if res.Type == "string" && res.Name == "app_name" {
			return res.Value
		}
	}
	return ""
}

// VariantName joins a flavor and build type the way Gradle names variants,
// e.g. "prelive" and "release" give "preliveRelease".
func VariantName(flavor string, buildType BuildType) string {
	bt := string(buildType)
	if bt == "" {
		return flavor
	}
	return flavor + strings.ToUpper(bt[:1]) + bt[1:]
}

// OutputFileName returns the conventional APK name for a variant.
func OutputFileName(flavor string, buildType BuildType) string {
	return fmt.Sprintf("app-%s-%s.apk", flavor, buildType)
}
