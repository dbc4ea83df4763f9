package featureflag

// FeatureFlag is a lookup of enabled feature flags.
type FeatureFlag map[Flag]bool

// New returns feature flags initialized from a list of flag names.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag, len(flags))
	for _, f := range flags {
		featureFlag[Flag(f)] = true
	}
	return featureFlag
}

// Enabled reports whether the given flag is set.
func (f FeatureFlag) Enabled(flag Flag) bool {
	return f[flag]
}

// IfSet runs do if the flag is set.
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if f.Enabled(flag) {
		do()
	}
}

// IfNotSet runs do if the flag is not set.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if !f.Enabled(flag) {
		do()
	}
}
