// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"eegstream/internal/eeg"
	"eegstream/internal/source"
)

// Pump feeds samples from src into c until the source ends, ctx is
// cancelled or the coordinator disconnects. Samples that fail validation
// are logged and skipped. The end of the source is reported as
// eeg.ErrUpstreamDisconnect; the coordinator keeps running so its watchdog
// marks the stream stale.
func Pump(ctx context.Context, src source.Source, c *Coordinator) error {
	logger := c.logger.With("source", src.Info().SourceID)

	for {
		s, err := src.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				logger.Infow("source exhausted", "ingested", c.Stats().Ingested)
				return fmt.Errorf("source %q: %w", src.Info().Name, eeg.ErrUpstreamDisconnect)
			}
			return fmt.Errorf("source %q: %w", src.Info().Name, err)
		}

		if err := c.Ingest(s); err != nil {
			var verr *eeg.ValidationError
			if errors.As(err, &verr) {
				logger.Warnw("sample rejected", "timestamp", s.Timestamp, "error", err)
				continue
			}
			return err
		}
	}
}
