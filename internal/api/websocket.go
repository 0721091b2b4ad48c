// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 本地工具定位，生产部署需要收紧
		return true
	},
}

// StreamClient 订阅某个运行事件流的单个连接
type StreamClient struct {
	conn     *websocket.Conn
	runID    string
	send     chan []byte
	closed   int32
	lastPong time.Time
}

// RunStream 按运行ID把回合事件推送给订阅的客户端
// 事件流是纯观测通道：断连、慢消费者都不影响回合推进
type RunStream struct {
	mutex   sync.RWMutex
	clients map[string]map[*StreamClient]struct{}
}

// NewRunStream 创建事件流管理器
func NewRunStream() *RunStream {
	return &RunStream{
		clients: make(map[string]map[*StreamClient]struct{}),
	}
}

// streamMessage 推送给客户端的消息封包
type streamMessage struct {
	Type    string                `json:"type"`
	RunID   string                `json:"run_id"`
	Events  []models.DisplayEvent `json:"events,omitempty"`
	Victory *models.VictoryResult `json:"victory,omitempty"`
}

// Broadcast 把一回合的事件推给该运行的所有订阅者
// 发送缓冲已满的慢消费者直接断开
func (s *RunStream) Broadcast(runID string, result *models.TurnResult) {
	payload, err := json.Marshal(streamMessage{
		Type:    "turn",
		RunID:   runID,
		Events:  result.Events,
		Victory: result.Victory,
	})
	if err != nil {
		utils.GetLogger().Error("事件流序列化失败", map[string]interface{}{"error": err.Error()})
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for client := range s.clients[runID] {
		select {
		case client.send <- payload:
		default:
			client.close()
		}
	}
}

// Subscribe 把HTTP连接升级为该运行的事件流订阅
func (s *RunStream) Subscribe(c *gin.Context, runID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket升级失败", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &StreamClient{
		conn:     conn,
		runID:    runID,
		send:     make(chan []byte, 64),
		lastPong: time.Now(),
	}

	s.mutex.Lock()
	if s.clients[runID] == nil {
		s.clients[runID] = make(map[*StreamClient]struct{})
	}
	s.clients[runID][client] = struct{}{}
	s.mutex.Unlock()

	go s.writeLoop(client)
	go s.readLoop(client)
}

func (c *StreamClient) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.conn.Close()
	}
}

func (c *StreamClient) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// writeLoop 顺序写出事件并按周期发心跳
func (s *RunStream) writeLoop(client *StreamClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		s.drop(client)
	}()

	for {
		select {
		case payload, ok := <-client.send:
			if !ok || client.isClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 事件流是单向的，读循环只消费pong和关闭帧
func (s *RunStream) readLoop(client *StreamClient) {
	defer s.drop(client)

	client.conn.SetReadLimit(1024)
	client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.lastPong = time.Now()
		client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop 注销并关闭客户端
func (s *RunStream) drop(client *StreamClient) {
	s.mutex.Lock()
	if set, ok := s.clients[client.runID]; ok {
		if _, ok := set[client]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(s.clients, client.runID)
			}
		}
	}
	s.mutex.Unlock()
	client.close()
}

// CloseRun 运行结束后断开其全部订阅者
func (s *RunStream) CloseRun(runID string) {
	s.mutex.Lock()
	set := s.clients[runID]
	delete(s.clients, runID)
	s.mutex.Unlock()

	for client := range set {
		client.close()
	}
}
