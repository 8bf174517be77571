package oracle

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

// Backend names accepted by New.
const (
	NameSearch = "search"
	NameHighs  = "highs"
)

var (
	// ErrUnknown is returned by New for an unsupported backend name.
	ErrUnknown = errors.New("unknown oracle")
	// ErrUnavailable is returned by New for a backend left out of this
	// build. The HiGHS backend needs the highs build tag.
	ErrUnavailable = errors.New("oracle not available in this build")
)

// Names lists the backends available in this build.
func Names() []string {
	if highsBuilt {
		return []string{NameSearch, NameHighs}
	}
	return []string{NameSearch}
}

// Valid reports whether name is a known backend, built in or not.
func Valid(name string) bool {
	return name == NameSearch || name == NameHighs
}

// Available reports whether New can create the named backend.
func Available(name string) bool {
	return name == NameSearch || (name == NameHighs && highsBuilt)
}

// New returns the named oracle bound to in.
func New(name string, in *model.Instance, logger log.FieldLogger) (opt.Oracle, error) {
	switch name {
	case NameSearch, "":
		return NewSearch(in, logger), nil
	case NameHighs:
		if !highsBuilt {
			return nil, fmt.Errorf("%w: %q", ErrUnavailable, name)
		}
		return newHighs(in, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
}
