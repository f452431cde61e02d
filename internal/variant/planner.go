package variant

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/izoe/variant-signer/internal/signing"
)

// CredentialResolver loads the credential behind a signing identity.
type CredentialResolver interface {
	Resolve(identity, propertiesPath string) (signing.Credential, error)
}

// Planner expands a catalog into build variants.
type Planner struct {
	catalog  Catalog
	resolver CredentialResolver
	logger   *zap.Logger
}

// NewPlanner validates the catalog and returns a Planner for it.
func NewPlanner(catalog Catalog, resolver CredentialResolver, logger *zap.Logger) (*Planner, error) {
	if resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		catalog:  catalog.Clone(),
		resolver: resolver,
		logger:   logger,
	}, nil
}

// Catalog returns a copy of the planner's catalog.
func (p *Planner) Catalog() Catalog {
	return p.catalog.Clone()
}

// Plan resolves every variant. Any resolution failure fails the whole plan and
// the returned error joins all failures found.
func (p *Planner) Plan() ([]Variant, error) {
	pass := newResolution(p)

	variants := make([]Variant, 0, len(p.catalog.Flavors)*len(p.catalog.BuildTypes))
	var failed bool
	for _, f := range p.catalog.Flavors {
		for _, bt := range p.catalog.BuildTypes {
			v, err := pass.variant(f, bt)
			if err != nil {
				failed = true
				continue
			}
			variants = append(variants, v)
		}
	}
	if failed {
		return nil, pass.err()
	}

	if err := checkDistinctKeyStores(variants); err != nil {
		return nil, err
	}

	p.logger.Info("variants resolved", zap.Int("count", len(variants)))
	return variants, nil
}

// Variant resolves a single flavor and build type combination.
func (p *Planner) Variant(flavor string, buildType BuildType) (Variant, error) {
	f, err := p.catalog.Flavor(flavor)
	if err != nil {
		return Variant{}, err
	}
	bt, err := p.catalog.BuildType(buildType)
	if err != nil {
		return Variant{}, err
	}

	v, err := newResolution(p).variant(f, bt)
	if err != nil {
		return Variant{}, err
	}
	p.logger.Info("variant resolved", zap.String("variant", v.Name))
	return v, nil
}

// resolution memoizes credentials for one planning pass so a shared identity is
// read and reported once.
type resolution struct {
	planner *Planner
	creds   map[string]signing.Credential
	errs    map[string]error
	order   []string
}

func newResolution(p *Planner) *resolution {
	return &resolution{
		planner: p,
		creds:   make(map[string]signing.Credential),
		errs:    make(map[string]error),
	}
}

func (r *resolution) credential(identity string) (signing.Credential, error) {
	if cred, ok := r.creds[identity]; ok {
		return cred, nil
	}
	if err, ok := r.errs[identity]; ok {
		return signing.Credential{}, err
	}

	path := r.planner.catalog.Identities[identity]
	cred, err := r.planner.resolver.Resolve(identity, path)
	if err != nil {
		r.planner.logger.Error("signing identity unresolved",
			zap.String("identity", identity),
			zap.String("properties", path),
			zap.Error(err),
		)
		r.errs[identity] = err
		r.order = append(r.order, identity)
		return signing.Credential{}, err
	}

	r.planner.logger.Debug("signing identity resolved", zap.Object("credential", cred))
	r.creds[identity] = cred
	return cred, nil
}

func (r *resolution) variant(f Flavor, bt BuildTypeConfig) (Variant, error) {
	identity := r.planner.catalog.IdentityFor(f, bt)
	cred, err := r.credential(identity)
	if err != nil {
		return Variant{}, fmt.Errorf("variant %s: %w", VariantName(f.Name, bt.Name), err)
	}

	app := r.planner.catalog.App
	displayName := f.DisplayName
	if displayName == "" {
		displayName = app.Name
	}

	return Variant{
		Name:          VariantName(f.Name, bt.Name),
		Flavor:        f,
		BuildType:     bt,
		ApplicationID: app.BundleID + f.ApplicationIDSuffix,
		VersionCode:   f.VersionCode,
		VersionName:   f.VersionName + f.VersionNameSuffix,
		Resources: []ResourceValue{
			{Type: "string", Name: "app_name", Value: displayName},
		},
		SigningIdentity: identity,
		Credential:      cred,
		OutputFile:      OutputFileName(f.Name, bt.Name),
	}, nil
}

func (r *resolution) err() error {
	errs := make([]error, 0, len(r.order))
	for _, identity := range r.order {
		errs = append(errs, r.errs[identity])
	}
	return errors.Join(errs...)
}

// checkDistinctKeyStores rejects two different non-debug identities that sign
// with the same key store file.
func checkDistinctKeyStores(variants []Variant) error {
	owners := make(map[string]string)
	for _, v := range variants {
		if v.BuildType.Debuggable {
			continue
		}
		store := v.Credential.StoreFile
		if owner, ok := owners[store]; ok && owner != v.SigningIdentity {
			return fmt.Errorf("%w: %q and %q both use %s", ErrSharedKeyStore, owner, v.SigningIdentity, store)
		}
		owners[store] = v.SigningIdentity
	}
	return nil
}
