// Package commkit is the root of a library for talking to devices and
// services that exchange raw byte frames.
//
// # Overview
//
// The library consists of several sub-packages:
//
//   - pkg/command: the command orchestrator, typed commands and validators
//   - pkg/channel: the channel contract and channel middleware
//   - pkg/channel/memory: a scripted in-memory channel
//   - pkg/config: JSON, TOML and YAML configuration
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/logging: structured logging
//   - pkg/errors: structured errors with codes and categories
//
// # Executing a Command
//
// A command sends a request, waits for a response, runs the response
// handlers and validators, and retries failing channel calls:
//
//	ch := memory.New()
//	cmd := commkit.NewCommand(ch,
//	    commkit.WithRequest(commkit.NewRequest([]byte{0x01, 0x03})),
//	    commkit.WithResponseValidators(command.EchoesRequestPrefix(1)),
//	)
//	if err := cmd.Execute(ctx, 2, nil); err != nil {
//	    // Handle error
//	}
//	fmt.Printf("% X\n", cmd.Response().Data())
//
// # Typed Commands
//
// A typed command parses the accepted response and converts it. Here the
// frame carries a one byte header and a one byte checksum:
//
//	voltage := commkit.NewTypedCommand[uint16](ch,
//	    command.RangeParser(1, 1),
//	    command.ConverterFunc[uint16](func(b []byte) (uint16, error) {
//	        return binary.BigEndian.Uint16(b), nil
//	    }),
//	    commkit.WithRequest(commkit.NewRequest([]byte{0x10})),
//	)
//
// # Channel Middleware
//
// Channels can be wrapped with fault classification, a circuit breaker,
// a token bucket throttle and an observer:
//
//	wrapped := commkit.ChainMiddleware(
//	    channel.NewClassifyMiddleware(nil),
//	    channel.NewBreakerMiddleware(channel.DefaultBreakerConfig()),
//	).Wrap(ch)
package commkit
