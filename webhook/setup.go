package webhook

import (
	"fmt"
	"log"
	"time"

	"hubhook/internal"
	"hubhook/pkg/secrets"
)

// NewDispatcherFromConfig wires the secret store, rules and publisher described by cfg.
// A publisher is only built when rules are configured. The returned function releases it.
func NewDispatcherFromConfig(cfg internal.Config, logger *log.Logger) (*Dispatcher, func() error, error) {
	noop := func() error { return nil }

	store, err := secrets.New(cfg.Secrets)
	if err != nil {
		return nil, noop, fmt.Errorf("secret store: %w", err)
	}

	ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  cfg.Rules,
		Strict: cfg.RulesStrict,
		Logger: logger,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("compile rules: %w", err)
	}

	opts := Options{
		SecretID:      cfg.GitHub.SecretID,
		SecretTimeout: time.Duration(cfg.GitHub.SecretTimeoutMS) * time.Millisecond,
		Rules:         ruleEngine,
		Logger:        logger,
	}
	closeFn := noop
	if len(cfg.Rules) > 0 {
		publisher, err := internal.NewPublisher(cfg.Watermill)
		if err != nil {
			return nil, noop, fmt.Errorf("publisher: %w", err)
		}
		opts.Publisher = publisher
		closeFn = publisher.Close
	}

	dispatcher, err := NewDispatcher(store, opts)
	if err != nil {
		_ = closeFn()
		return nil, noop, err
	}
	return dispatcher, closeFn, nil
}
