package harvest

import "context"

// Publisher receives every finished run. Errors are logged by the Service and
// never fail the run.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, run Run) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc struct {
	Label string
	Fn    func(ctx context.Context, run Run) error
}

func (p PublisherFunc) Name() string { return p.Label }

func (p PublisherFunc) Publish(ctx context.Context, run Run) error { return p.Fn(ctx, run) }
