package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/models"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// wsBattle reads battle requests and streams each battle back as it is
// fought: one "event" message per phase, then a "result".
func (s *Server) wsBattle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	send := func(m models.WsMsg) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m)
	}
	sendError := func(code int, msg string) error {
		return send(models.WsMsg{Type: models.MsgError, Data: models.ErrorResponse{
			Error:   http.StatusText(code),
			Message: msg,
			Status:  code,
		}})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read", zap.Error(err))
			}
			return
		}
		req, err := decodeBattleRequest(data)
		if err != nil {
			if err := sendError(http.StatusBadRequest, err.Error()); err != nil {
				s.log.Warn("websocket write", zap.Error(err))
				return
			}
			continue
		}

		var writeErr error
		resp, err := s.battle(req, func(ev combat.Event) {
			if writeErr == nil {
				writeErr = send(models.WsMsg{Type: models.MsgEvent, Data: ev})
			}
		})
		if writeErr != nil {
			s.log.Warn("websocket write", zap.Error(writeErr))
			return
		}
		if err != nil {
			writeErr = sendError(statusOf(err), err.Error())
		} else {
			writeErr = send(models.WsMsg{Type: models.MsgResult, Data: resp})
		}
		if writeErr != nil {
			s.log.Warn("websocket write", zap.Error(writeErr))
			return
		}
	}
}

func decodeBattleRequest(data []byte) (models.BattleRequest, error) {
	var req models.BattleRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return models.BattleRequest{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return req, nil
}
