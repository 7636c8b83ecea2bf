package di

import "time"

// StackWaitTimeout bounds how long stack operations block until the stack settles.
// Zero returns as soon as CloudFormation accepts the request.
type StackWaitTimeout time.Duration

// StackTags are applied to every stack the deployer creates or updates
type StackTags map[string]string

// Option is a function that configures the dependency injection container.
type Option func(*options)

func WithStackWaitTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.stackWaitTimeout = StackWaitTimeout(timeout)
	}
}

func WithStackTags(tags map[string]string) Option {
	return func(opts *options) {
		opts.stackTags = StackTags(tags)
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func() *Database { return &Database{} },
//	    func(db *Database) *Service { return &Service{DB: db} },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	providers        []any
	stackWaitTimeout StackWaitTimeout
	stackTags        StackTags
}
