// Package storage provides the key/value persistence capability used by the
// widget session, plus the single-cookie jar that carries the thread id.
//
// Backends return real errors. The session never talks to a backend
// directly; it goes through Soft, which downgrades every failure to
// "absent" or a no-op so that disabled or broken storage never breaks the
// widget.
package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// FlagValue is the sentinel stored for boolean flags. A flag is set when the
// key holds this value and unset when the key is absent.
const FlagValue = "1"

// ErrDisabled is returned by the Disabled backend for every operation.
var ErrDisabled = errors.New("storage: disabled")

// Store is a string key/value backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Key joins a namespace and a name into a storage key.
func Key(namespace string, name string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return name
	}
	return namespace + ":" + name
}

// Disabled models a host where storage is unavailable (private mode,
// blocked third-party storage). Every call fails.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) Get(context.Context, string) (string, bool, error) { return "", false, ErrDisabled }
func (Disabled) Set(context.Context, string, string) error         { return ErrDisabled }
func (Disabled) Remove(context.Context, string) error              { return ErrDisabled }
func (Disabled) Close() error                                      { return nil }
