package daemon

import (
	"context"
	"sync/atomic"

	"github.com/Aman-CERP/conceptrank/internal/engine"
)

// EngineHandler serves RPC requests from an engine.
type EngineHandler struct {
	engine  *engine.Engine
	served  atomic.Int64
	polling atomic.Bool
}

// NewEngineHandler creates a handler over e.
func NewEngineHandler(e *engine.Engine) *EngineHandler {
	return &EngineHandler{engine: e}
}

// HandleRank ranks one query.
func (h *EngineHandler) HandleRank(ctx context.Context, params RankParams) (*engine.Response, error) {
	resp, err := h.engine.Rank(ctx, params.Query(h.engine.Config().TopN))
	if err == nil {
		h.served.Add(1)
	}
	return resp, err
}

// SetPolling records whether a poller is attached.
func (h *EngineHandler) SetPolling(on bool) {
	h.polling.Store(on)
}

// GetStatus reports the corpus and serving counters.
func (h *EngineHandler) GetStatus() StatusResult {
	st := h.engine.Corpus().Stats()
	return StatusResult{
		Concepts:      st.Concepts,
		Labels:        st.Labels,
		QueriesServed: h.served.Load(),
		SinkState:     h.engine.SinkState(),
		Polling:       h.polling.Load(),
		Metrics:       h.engine.Metrics(),
	}
}
