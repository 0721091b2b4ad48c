// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/AshgroveGames/ParleyCore/internal/config"
	apperrors "github.com/AshgroveGames/ParleyCore/internal/errors"
	"github.com/AshgroveGames/ParleyCore/internal/llm"
	"github.com/AshgroveGames/ParleyCore/internal/trace"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var providerDefaultModels = map[string]string{
	"openai":     "gpt-4.1-mini",
	"anthropic":  "claude-haiku-4.5",
	"openrouter": "x-ai/grok-4.1-fast:free",
}

// LLMService 模型网关：所有组件通过它访问语言模型
// 统一处理提供商管理、超时、缓存、JSON清洗和遥测记录
// 网关本身不做任何游戏逻辑决策
type LLMService struct {
	providerMutex      sync.RWMutex
	provider           llm.Provider
	providerName       string
	activeDefaultModel string
	isReady            bool
	readyState         string

	cache *LLMCache
	sink  trace.Sink
	seq   int64 // 网关调用序号，单调递增
}

type LLMCache struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
}

type CacheEntry struct {
	Response  interface{}
	CreatedAt time.Time
}

// NewLLMService 根据当前配置创建网关
// 配置缺失时返回未就绪的服务而不是错误，调用方用 GetProviderStatus 判断
func NewLLMService() (*LLMService, error) {
	service := createBaseLLMService()

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service, nil
	}

	if cfg.LLMProvider == "" || (cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] == "") {
		service.readyState = "API key not configured"
		return service, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service, nil
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.activeDefaultModel = extractDefaultModel(cfg.LLMConfig)
	service.isReady = true
	service.readyState = "Ready"

	return service, nil
}

// NewEmptyLLMService 创建一个空的网关实例作为后备方案
func NewEmptyLLMService() *LLMService {
	service := createBaseLLMService()
	service.providerName = "empty"
	service.readyState = "Standby Service Mode – Please configure the API key in settings"
	return service
}

func createBaseLLMService() *LLMService {
	return &LLMService{
		readyState: "Uninitialized",
		sink:       trace.NopSink{},
		cache: &LLMCache{
			cache:      make(map[string]*CacheEntry),
			expiration: 30 * time.Minute,
		},
	}
}

// SetTraceSink 绑定遥测接收器；nil 等价于丢弃
func (s *LLMService) SetTraceSink(sink trace.Sink) {
	if sink == nil {
		sink = trace.NopSink{}
	}
	s.providerMutex.Lock()
	s.sink = sink
	s.providerMutex.Unlock()
}

// IsReady 返回网关是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetProviderStatus 返回网关是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM服务实例未初始化"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.provider != nil && s.isReady {
		return true, "Ready"
	}
	return false, s.readyState
}

// GetProviderName 返回当前提供商名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider 热切换提供商，成功后清空缓存
func (s *LLMService) UpdateProvider(providerName string, cfg map[string]string) error {
	provider, err := llm.GetProvider(providerName, cfg)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.activeDefaultModel = extractDefaultModel(cfg)
	s.isReady = true
	s.readyState = "Ready"

	s.cache = &LLMCache{
		cache:      make(map[string]*CacheEntry),
		expiration: 30 * time.Minute,
	}

	return nil
}

// resolveModel 请求未指定模型时落到配置默认值，再落到提供商默认值
func (s *LLMService) resolveModel(requestedModel string) string {
	if requestedModel != "" {
		return requestedModel
	}

	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if s.activeDefaultModel != "" {
		return s.activeDefaultModel
	}
	if m, ok := providerDefaultModels[s.providerName]; ok {
		return m
	}
	return ""
}

func extractDefaultModel(cfg map[string]string) string {
	if cfg == nil {
		return ""
	}
	if m := cfg["default_model"]; m != "" {
		return m
	}
	return cfg["model"]
}

// generateCacheKey 生成缓存键
func (s *LLMService) generateCacheKey(prompt, systemPrompt, model string) string {
	s.providerMutex.RLock()
	providerName := s.providerName
	s.providerMutex.RUnlock()

	hashInput := fmt.Sprintf("%s:::%s:::%s:::%s", prompt, systemPrompt, model, providerName)
	h := md5.New()
	h.Write([]byte(hashInput))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *LLMCache) getFromCache(key string) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return nil, false
	}
	if time.Since(entry.CreatedAt) > c.expiration {
		return nil, false
	}
	return entry.Response, true
}

func (c *LLMCache) saveToCache(key string, response interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[key] = &CacheEntry{
		Response:  response,
		CreatedAt: time.Now(),
	}

	if len(c.cache) > 1000 {
		c.cleanupOldest(100)
	}
}

func (c *LLMCache) cleanupOldest(count int) {
	type keyAge struct {
		key string
		age time.Time
	}

	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.CreatedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].age.Before(entries[j].age)
	})

	if count > len(entries) {
		count = len(entries)
	}
	for i := 0; i < count; i++ {
		delete(c.cache, entries[i].key)
	}
}

// recordTrace 记录一次网关调用的遥测事件
// 调用方（component/purpose）、实际模型、调用序号，不含提示词内容
func (s *LLMService) recordTrace(component, purpose, model string) {
	s.providerMutex.RLock()
	sink := s.sink
	s.providerMutex.RUnlock()

	sink.Record(trace.Event{
		Component:  component,
		Purpose:    purpose,
		ModelID:    model,
		SequenceNo: atomic.AddInt64(&s.seq, 1),
		Timestamp:  time.Now(),
	})
}

// withTimeout 给网关调用套上配置的超时
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	cfg := config.GetCurrentConfig()
	seconds := config.DefaultGatewayTimeout
	if cfg != nil && cfg.GatewayTimeoutSeconds > 0 {
		seconds = cfg.GatewayTimeoutSeconds
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}

// CreateTextCompletion 自由文本补全，用于角色对白生成
// component/purpose 仅用于遥测标注
func (s *LLMService) CreateTextCompletion(ctx context.Context, component, purpose, prompt, systemPrompt string) (string, error) {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	state := s.readyState
	s.providerMutex.RUnlock()

	if !ready || provider == nil {
		return "", apperrors.NewGatewayError(fmt.Sprintf("模型网关未就绪: %s", state), nil)
	}

	model := s.resolveModel("")
	cacheKey := s.generateCacheKey(prompt, systemPrompt, model)

	if cached, ok := s.cache.getFromCache(cacheKey); ok {
		if text, ok := cached.(string); ok {
			utils.GetLogger().Debug("网关缓存命中", map[string]interface{}{"purpose": purpose, "cache_key_prefix": cacheKey[:8]})
			return text, nil
		}
	}

	callCtx, cancel := withTimeout(ctx)
	defer cancel()

	s.recordTrace(component, purpose, model)

	resp, err := provider.CompleteText(callCtx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
		Model:        model,
	})
	if err != nil {
		return "", apperrors.NewGatewayError("模型调用失败", err)
	}

	text := strings.TrimSpace(resp.Text)
	s.cache.saveToCache(cacheKey, text)
	return text, nil
}

// CreateStructuredCompletion 结构化补全：要求模型输出JSON并解析到 outputSchema
// 解析失败是提取层面的错误，传输失败是网关层面的错误，两者类型可区分
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, component, purpose, prompt, systemPrompt string, outputSchema interface{}) error {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	state := s.readyState
	s.providerMutex.RUnlock()

	if !ready || provider == nil {
		return apperrors.NewGatewayError(fmt.Sprintf("模型网关未就绪: %s", state), nil)
	}

	structuredSystemPrompt := systemPrompt
	if structuredSystemPrompt != "" {
		structuredSystemPrompt += "\n\n"
	}
	structuredSystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	model := s.resolveModel("")
	cacheKey := s.generateCacheKey(prompt, structuredSystemPrompt, model)

	if cached, ok := s.cache.getFromCache(cacheKey); ok {
		if raw, ok := cached.(string); ok {
			if json.Unmarshal([]byte(raw), outputSchema) == nil {
				utils.GetLogger().Debug("网关缓存命中", map[string]interface{}{"purpose": purpose, "cache_key_prefix": cacheKey[:8]})
				return nil
			}
		}
	}

	callCtx, cancel := withTimeout(ctx)
	defer cancel()

	s.recordTrace(component, purpose, model)

	resp, err := provider.CompleteText(callCtx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: structuredSystemPrompt,
		Temperature:  0.3,
		Model:        model,
		ResponseJSON: true,
	})
	if err != nil {
		return apperrors.NewGatewayError("模型调用失败", err)
	}

	text := cleanJSONString(resp.Text)
	if err := json.Unmarshal([]byte(text), outputSchema); err != nil {
		return apperrors.NewExtractionError(
			fmt.Sprintf("模型输出无法解析为结构化数据: %v", err), err)
	}

	s.cache.saveToCache(cacheKey, text)
	return nil
}

// 清理JSON字符串，去除前后非JSON内容
var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```", "",
	"\ufeff", "",
	"\u00a0", " ",
)

func cleanJSONString(s string) string {
	if s == "" {
		return s
	}

	s = jsonNoiseReplacer.Replace(s)

	// 移除零宽字符及除换行/制表符外的控制字符
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	// 丢弃第一个 { 或 [ 之前的内容
	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = s[start:]

	// 括号计数找到匹配的结束符，截掉其后的尾注
	open, close := byte('{'), byte('}')
	if s[0] == '[' {
		open, close = '[', ']'
	}

	balance := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			balance++
		case !inString && c == close:
			balance--
			if balance == 0 {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}

	// 没有闭合，退回到最后一个结束符
	if end := strings.LastIndexByte(s, close); end != -1 {
		return strings.TrimSpace(s[:end+1])
	}
	return strings.TrimSpace(s)
}

// CleanLLMJSONResponse 提供给外部调用的JSON清洗助手
func CleanLLMJSONResponse(raw string) string {
	return cleanJSONString(raw)
}
