package feeds

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE STREAM - WebSocket ingress for source-wallet trade events
// ═══════════════════════════════════════════════════════════════════════════════
//
// Connects to the upstream trade-event stream and fans events into the
// copy-trade engine. The stream is assumed monotonic per wallet; ordering
// between wallets is not guaranteed and the engine tolerates it.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	eventBuffer    = 256
)

// wireEvent mirrors the JSON messages on the trade stream.
type wireEvent struct {
	EventID      string `json:"event_id"`
	Wallet       string `json:"wallet_address"`
	TxHash       string `json:"tx_hash"`
	BlockNumber  int64  `json:"block_number"`
	TimestampMs  int64  `json:"timestamp_ms"`
	ConditionID  string `json:"condition_id"`
	OutcomeIndex int    `json:"outcome_index"`
	TokenID      string `json:"token_id"`
	Side         string `json:"side"`
	Role         string `json:"role"`
	Tokens       string `json:"tokens"`
	USDC         string `json:"usdc"`
	SourceType   string `json:"source_type"`
	MarketID     string `json:"market_id"`
}

// TradeStream manages the WebSocket connection and event distribution.
type TradeStream struct {
	mu sync.Mutex

	wsURL   string
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	events chan types.TradeEvent
}

// NewTradeStream creates a stream for the given WebSocket URL.
func NewTradeStream(wsURL string) *TradeStream {
	return &TradeStream{
		wsURL:  wsURL,
		events: make(chan types.TradeEvent, eventBuffer),
	}
}

// Events is the channel the copy-trade engine consumes.
func (s *TradeStream) Events() <-chan types.TradeEvent {
	return s.events
}

// Start connects and begins processing. Idempotent.
func (s *TradeStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	go s.connectionLoop()
	log.Info().Str("url", s.wsURL).Msg("📡 Trade stream started")
}

// Stop closes the connection and the event channel.
func (s *TradeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *TradeStream) connectionLoop() {
	for {
		select {
		case <-s.stopCh:
			close(s.events)
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("Trade stream connect failed")
			select {
			case <-s.stopCh:
				close(s.events)
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		s.readLoop()
	}
}

func (s *TradeStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	log.Info().Msg("Trade stream connected")
	return nil
}

func (s *TradeStream) readLoop() {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := s.conn.ReadMessage()
			if err != nil {
				return
			}
			s.dispatch(payload)
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-done:
			log.Warn().Msg("Trade stream disconnected, reconnecting")
			return
		case <-pingTicker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn != nil {
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}
}

func (s *TradeStream) dispatch(payload []byte) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		log.Debug().Err(err).Msg("Unparseable stream message")
		return
	}
	ev, ok := wire.toEvent()
	if !ok {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("event", ev.EventID).Msg("Event buffer full, dropping")
	}
}

func (w *wireEvent) toEvent() (types.TradeEvent, bool) {
	if w.EventID == "" || w.Wallet == "" {
		return types.TradeEvent{}, false
	}
	tokens, err := decimal.NewFromString(w.Tokens)
	if err != nil {
		return types.TradeEvent{}, false
	}
	usdc, err := decimal.NewFromString(w.USDC)
	if err != nil {
		return types.TradeEvent{}, false
	}
	source := types.SourceType(w.SourceType)
	if source == "" {
		source = types.SourceCLOB
	}
	return types.TradeEvent{
		EventID:       w.EventID,
		WalletAddress: types.NormalizeWallet(w.Wallet),
		TxHash:        strings.ToLower(w.TxHash),
		BlockNumber:   w.BlockNumber,
		Timestamp:     time.UnixMilli(w.TimestampMs).UTC(),
		ConditionID:   strings.ToLower(w.ConditionID),
		OutcomeIndex:  w.OutcomeIndex,
		TokenID:       w.TokenID,
		Side:          types.Side(strings.ToLower(w.Side)),
		Role:          types.Role(strings.ToLower(w.Role)),
		Tokens:        tokens,
		USDC:          usdc,
		SourceType:    source,
		MarketID:      w.MarketID,
	}, true
}
