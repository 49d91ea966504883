//go:build !govips || !cgo

package imageprep

// Without the govips tag there is no native runtime to manage; both
// lifecycle hooks are no-ops and the pure-Go preprocessor is used.

func Startup() error {
	return nil
}

func Shutdown() {}

func newPreprocessor() (Preprocessor, error) {
	return stdPreprocessor{}, nil
}
