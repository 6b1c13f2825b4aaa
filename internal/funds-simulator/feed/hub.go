package feed

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/pkg/contracts/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subject é um item do catálogo simulado
type Subject struct {
	ID        string
	Projected float64
}

// Catalog de subjects usados pelo gerador
var Catalog = []Subject{
	{ID: "player-001-points", Projected: 24.5},
	{ID: "player-002-points", Projected: 18},
	{ID: "player-003-rebounds", Projected: 9.5},
	{ID: "player-004-assists", Projected: 7},
}

// Hub gerencia os clientes conectados e faz broadcast das estatísticas
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
	log     *zap.Logger

	connections prometheus.Gauge
	sent        prometheus.Counter
}

func NewHub(reg prometheus.Registerer, log *zap.Logger) *Hub {
	h := &Hub{
		clients: make(map[string]*websocket.Conn),
		log:     log,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stats_feed_ws_connections",
			Help: "Clientes WebSocket conectados",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stats_feed_ws_messages_sent_total",
			Help: "Total de mensagens WS enviadas",
		}),
	}
	if reg != nil {
		reg.MustRegister(h.connections, h.sent)
	}
	return h
}

func (h *Hub) add(id string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = c
	h.connections.Inc()
	h.log.Info("ws client connected", zap.String("client_id", id))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.connections.Dec()
		h.log.Info("ws client disconnected", zap.String("client_id", id))
	}
}

// Clients devolve o número de conexões ativas
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast envia a mensagem para todos os clientes conectados
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to marshal broadcast", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", id), zap.Error(err))
			_ = c.Close()
			continue
		}
		h.sent.Inc()
	}
}

// ServeHTTP faz o upgrade e mantém a conexão até o cliente sair
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	h.add(id, conn)

	go func() {
		defer func() {
			h.remove(id)
			_ = conn.Close()
		}()
		for {
			// descarta o que o cliente mandar
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Finalize gera o resultado definitivo de um subject em torno da projeção.
// O valor é arredondado em meio ponto.
func Finalize(s Subject, source string) events.StatisticFinal {
	v := s.Projected + (rand.Float64()*2-1)*s.Projected*0.4
	if v < 0 {
		v = 0
	}
	return events.StatisticFinal{
		SubjectID: s.ID,
		Value:     decimal.NewFromFloat(v).Mul(decimal.NewFromInt(2)).Round(0).Div(decimal.NewFromInt(2)),
		Source:    source,
		Ts:        time.Now().UTC(),
	}
}
