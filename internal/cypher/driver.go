package cypher

// Driver is the request/response surface the graph layer consumes: submit a
// statement with parameters, get records and a write summary back. The
// embedded implementation runs against SQLite; anything speaking the same
// contract can stand in for it.
type Driver interface {
	Run(query string, params map[string]any) (*Result, error)
	Close() error
}

// EmbeddedDriver executes statements in-process against the store.
type EmbeddedDriver struct {
	exec   *Executor
	closer func() error
}

// NewEmbeddedDriver wraps an executor as a Driver. closer is invoked by
// Close and may be nil.
func NewEmbeddedDriver(exec *Executor, closer func() error) *EmbeddedDriver {
	return &EmbeddedDriver{exec: exec, closer: closer}
}

// Run parses and executes one statement.
func (d *EmbeddedDriver) Run(query string, params map[string]any) (*Result, error) {
	st, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return d.exec.Execute(st, params)
}

// Close releases the underlying store.
func (d *EmbeddedDriver) Close() error {
	if d.closer != nil {
		return d.closer()
	}
	return nil
}
