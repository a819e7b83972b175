package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"quiz-play-gateway/internal/app"
	"quiz-play-gateway/internal/domain"
	"quiz-play-gateway/internal/retry"
)

// Deps bundles everything a connection needs to drive play sessions.
type Deps struct {
	Backend    app.Backend
	Ledger     app.Ledger
	Journal    app.Journal
	Gate       *app.PlayGate
	Controller app.Options
	RetryEnv   retry.Envelope
}

// WSHandler upgrades clients to WebSocket and runs one SessionController
// per connection. Wallet flows stay in the client; the gateway only needs
// the address.
type WSHandler struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewWSHandler(deps Deps) *WSHandler {
	return &WSHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	TournamentID int64 `json:"tournamentId"`
}

type answerPayload struct {
	QuestionID int64 `json:"questionId"`
	OptionID   int64 `json:"optionId"`
}

type registeredPayload struct {
	TournamentID int64 `json:"tournamentId"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Message string      `json:"message"`
	Kind    domain.Kind `json:"kind"`
}

type creditsPayload struct {
	Credits int `json:"credits"`
}

type settlementPayload struct {
	TxHash string `json:"txHash"`
}

type registrationsPayload struct {
	TournamentIDs []int64 `json:"tournamentIds"`
}

// ServeWS wires one WebSocket client into the play lifecycle.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(r.URL.Query().Get("addr"))
	if address == "" {
		http.Error(w, "missing addr", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	push := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-done:
		}
	}

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	credits := app.NewCreditReconciler(h.deps.Backend, h.deps.Ledger, address, h.deps.RetryEnv)
	controller := app.NewSessionController(h.deps.Backend, credits, h.deps.Journal, h.deps.Controller, app.Callbacks{
		OnResult: func(res domain.Result) {
			push(outboundMessage{Type: "result", Payload: res})
		},
		OnSettled: func(txHash string) {
			push(outboundMessage{Type: "settlement", Payload: settlementPayload{TxHash: txHash}})
		},
	})
	defer func() {
		close(done)
		controller.Close()
		credits.Close()
		<-writerDone
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					push(errorMessage("invalid start payload", domain.KindBackendRejected))
					continue
				}
			}
			if payload.TournamentID > 0 {
				// Daily-limit gate runs, and spends a play, before the
				// backend is contacted.
				if err := h.deps.Gate.Allow(address, payload.TournamentID); err != nil {
					push(errorMessage(err.Error(), domain.KindOf(err)))
					continue
				}
			}
			sess, err := controller.Start(r.Context(), address, payload.TournamentID)
			if err != nil {
				push(errorMessage(err.Error(), domain.KindOf(err)))
				continue
			}
			push(outboundMessage{Type: "session", Payload: sess})

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(errorMessage("invalid answer payload", domain.KindBackendRejected))
				continue
			}
			if err := controller.ChooseOption(r.Context(), payload.QuestionID, payload.OptionID); err != nil {
				push(errorMessage(err.Error(), domain.KindOf(err)))
				continue
			}
			push(outboundMessage{Type: "answerAck", Payload: payload})

		case "finish":
			// The result arrives via the OnResult callback; a duplicate
			// finish is a no-op thanks to the controller's guard.
			go func() {
				if _, err := controller.FinishAndSubmit(r.Context()); err != nil {
					log.Printf("ws finish: %v", err)
				}
			}()

		case "credits":
			if _, err := credits.Refresh(r.Context()); err != nil {
				log.Printf("ws credits refresh: %v", err)
			}
			push(outboundMessage{Type: "credits", Payload: creditsPayload{Credits: credits.Display()}})

		case "registered":
			var payload registeredPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(errorMessage("invalid registered payload", domain.KindBackendRejected))
				continue
			}
			if err := h.deps.Ledger.MarkRegistered(address, payload.TournamentID); err != nil {
				log.Printf("ws mark registered: %v", err)
			}
			push(h.registrations(address))

		case "registrations":
			push(h.registrations(address))

		default:
			push(errorMessage("unsupported message type", domain.KindBackendRejected))
		}
	}
}

func (h *WSHandler) registrations(address string) outboundMessage {
	ids, err := h.deps.Ledger.RegisteredTournaments(address)
	if err != nil {
		log.Printf("ws registrations: %v", err)
		ids = nil
	}
	return outboundMessage{Type: "registrations", Payload: registrationsPayload{TournamentIDs: ids}}
}

func errorMessage(msg string, kind domain.Kind) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg, Kind: kind}}
}
