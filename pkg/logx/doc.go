// Package logx configures cronbot's structured logging.
//
// Components log through logx.Logger, a value type on top of zerolog:
//   - console output stays human readable (short timestamp, file:line caller)
//   - file output is JSON lines
//   - an optional chat sink forwards warnings to an operator chat, rate limited
//
// The zero Logger is a no-op, so components can accept one without nil checks.
package logx
