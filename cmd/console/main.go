// cmd/console/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/AshgroveGames/ParleyCore/internal/app"
	"github.com/AshgroveGames/ParleyCore/internal/config"
	"github.com/AshgroveGames/ParleyCore/internal/di"
	_ "github.com/AshgroveGames/ParleyCore/internal/llm/providers/anthropic"
	_ "github.com/AshgroveGames/ParleyCore/internal/llm/providers/openai"
	_ "github.com/AshgroveGames/ParleyCore/internal/llm/providers/openrouter"
	"github.com/AshgroveGames/ParleyCore/internal/models"
	"github.com/AshgroveGames/ParleyCore/internal/services"
	"github.com/AshgroveGames/ParleyCore/internal/storage"
	"github.com/AshgroveGames/ParleyCore/internal/utils"
)

func main() {
	scenarioID := flag.String("scenario", "", "要运行的剧本ID，留空则列出可用剧本")
	flag.Parse()

	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	if err := utils.InitLogger(filepath.Join(baseConfig.LogDir, "console.log")); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	// 控制台模式下日志只进文件，不干扰对话输出
	utils.GetLogger().Enable(true)

	if err := app.InitServices(); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	defer app.Cleanup()

	container := di.GetContainer()
	runService := container.Get("runs").(*services.RunService)
	contentStore := container.Get("content").(*storage.ContentStore)
	llmService := container.Get("llm").(*services.LLMService)

	if *scenarioID == "" {
		listScenarios(contentStore)
		return
	}

	if ready, state := llmService.GetProviderStatus(); !ready {
		fmt.Printf("警告: 模型网关未就绪（%s），自然语言解析会退化，显式命令仍然可用。\n\n", state)
	}

	run, intro, err := runService.CreateRun(*scenarioID)
	if err != nil {
		log.Fatalf("创建运行失败: %v", err)
	}

	fmt.Println(intro)
	fmt.Println()
	fmt.Println("输入对话或命令（/give /request /trade /accept /decline /say），/quit 退出。")

	repl(runService, run.ID)
}

func listScenarios(contentStore *storage.ContentStore) {
	ids, err := contentStore.ListScenarios()
	if err != nil {
		log.Fatalf("读取剧本失败: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("没有可用剧本。")
		return
	}
	fmt.Println("可用剧本:")
	for _, id := range ids {
		scenario, err := contentStore.LoadScenario(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %s - %s\n", scenario.ID, scenario.Name)
	}
	fmt.Println("\n使用 -scenario <id> 开始运行。")
}

func repl(runService *services.RunService, runID string) {
	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			epilogue, err := runService.EndRun(runID)
			if err == nil {
				fmt.Println()
				fmt.Println(epilogue)
			}
			return
		}

		result, err := runService.SubmitInput(ctx, runID, input)
		if err != nil {
			fmt.Printf("错误: %v\n", err)
			continue
		}

		printEvents(result.Events)

		if result.Victory != nil {
			fmt.Println("\n*** 胜利达成 ***")
			return
		}
	}
}

func printEvents(events []models.DisplayEvent) {
	for _, event := range events {
		switch event.Type {
		case models.EventDialogue:
			fmt.Printf("%s: %s\n", event.Speaker, event.Text)
		case models.EventActionResult:
			fmt.Printf("  * %s\n", event.Text)
		case models.EventNarration:
			fmt.Printf("  %s\n", event.Text)
		case models.EventVictory:
			fmt.Printf("\n%s\n", event.Text)
		}
	}
}
