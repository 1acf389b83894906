/*
Package resilience provides a circuit breaker for outbound deliveries.

# Overview

A Breaker guards calls to an external dependency, typically a webhook
target. After a run of consecutive failures the breaker opens and rejects
calls immediately; after a cooldown it admits a limited number of trial
calls and closes again once they succeed.

# Usage

	breaker := resilience.New("https://hooks.example.com", resilience.Options{
		FailureStreak: 5,
		Cooldown:      30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Printf("breaker %s: %s -> %s", name, from, to)
		},
	})

	err := breaker.Do(func() error {
		return client.Deliver(event)
	})

# States

	Closed --[failure streak]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                                    |
	                                              [probe fails]
	                                                    |
	                                                    v
	                                                  Open
*/
package resilience
