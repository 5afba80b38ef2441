package core

// Flavour selects the deployment environment profile.
type Flavour string

const (
	FlavourDev  Flavour = "dev"
	FlavourStg  Flavour = "stg"
	FlavourProd Flavour = "prod"
)

// IsDev reports whether the process runs with the development profile. An
// unset flavour counts as dev.
func (f Flavour) IsDev() bool {
	return f == "" || f == FlavourDev
}

// Config carries process-wide settings. It is loaded once at startup and
// injected; processors never read ambient environment state.
type Config struct {
	Flavour Flavour `yaml:"flavour"`
}
