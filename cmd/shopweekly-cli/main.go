package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuqie6/shopweekly/internal/bootstrap"
	"github.com/yuqie6/shopweekly/internal/schema"
)

var (
	cfgFile string
	core    *bootstrap.Core
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shopweekly",
		Short: "ShopWeekly - 门店周报协同录入与 AI 生成系统",
		Long:  `ShopWeekly 管理多门店的周报录入、跨设备草稿同步、AI 周报生成与修正学习。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			core, err = bootstrap.NewCore(cmd.Context(), cfgFile)
			if err != nil {
				slog.Error("初始化失败", "error", err)
				os.Exit(1)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// listCmd 列出周报
func listCmd() *cobra.Command {
	var store string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出周报",
		Run: func(cmd *cobra.Command, args []string) {
			summaries, err := core.Services.Reports.History(cmd.Context(), store)
			if err != nil {
				slog.Error("查询失败", "error", err)
				os.Exit(1)
			}
			if len(summaries) == 0 {
				fmt.Println("暂无周报数据")
				return
			}
			fmt.Printf("%-6s %-12s %-6s %-6s\n", "店铺", "周(周一)", "已生成", "已修正")
			for _, s := range summaries {
				fmt.Printf("%-6s %-12s %-6s %-6s\n", s.StoreName, s.MondayDate, mark(s.HasGenerated), mark(s.HasModified))
			}
		},
	}

	cmd.Flags().StringVar(&store, "store", "", "只看指定店铺")
	return cmd
}

// showCmd 查看一份周报
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <店铺> <周一日期>",
		Short: "查看一份周报的完整内容",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			report, err := core.Services.Reports.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				slog.Error("查询失败", "error", err)
				os.Exit(1)
			}

			fmt.Printf("===== %s %s週 =====\n\n", args[0], report.MondayDate)
			printDaily(report.DailyReports)
			if report.Topics != "" {
				fmt.Printf("\n【TOPICS】\n%s\n", report.Topics)
			}
			if report.ImpactDay != "" {
				fmt.Printf("\n【インパクト大】\n%s\n", report.ImpactDay)
			}
			if report.QuantitativeData != "" {
				fmt.Printf("\n【定量データ】\n%s\n", report.QuantitativeData)
			}
			if !report.GeneratedReport.IsEmpty() {
				fmt.Printf("\n----- AI 生成 -----\n")
				printReport(report.GeneratedReport.Trend, report.GeneratedReport.Factors, report.GeneratedReport.Questions)
			}
			if !report.ModifiedReport.IsEmpty() {
				fmt.Printf("\n----- 人工修正 -----\n")
				printReport(report.ModifiedReport.Trend, report.ModifiedReport.Factors, report.ModifiedReport.Questions)
				if report.ModifiedReport.EditReason != "" {
					fmt.Printf("修正理由: %s\n", report.ModifiedReport.EditReason)
				}
			}
		},
	}
}

// generateCmd 生成周报
func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <店铺> <周一日期>",
		Short: "为指定周生成 AI 周报",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := core.RequireAIConfigured(); err != nil {
				slog.Error("无法生成", "error", err)
				os.Exit(1)
			}

			fmt.Printf("正在生成 %s %s週 的周报...\n\n", args[0], args[1])
			result, err := core.Services.Reports.Generate(cmd.Context(), args[0], args[1])
			if err != nil {
				slog.Error("生成失败", "error", err)
				os.Exit(1)
			}

			printReport(result.Report.Trend, result.Report.Factors, result.Report.Questions)
			if !result.Consistency.Consistent {
				fmt.Println("\n整合性チェックの指摘:")
				for _, issue := range result.Consistency.Issues {
					fmt.Printf("  - %s\n", issue)
				}
			}
		},
	}
}

// sweepCmd 清扫超时会话与过期草稿
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "清扫超时会话与过期草稿",
		Run: func(cmd *cobra.Command, args []string) {
			result, err := core.Services.Sessions.Sweep(cmd.Context())
			if err != nil {
				slog.Error("清扫失败", "error", err)
				os.Exit(1)
			}
			fmt.Printf("已清除会话 %d 个，草稿单元 %d 条\n", result.SessionsRemoved, result.DraftsRemoved)
		},
	}
}

// statsCmd 学习数据统计
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "查看周报与修正学习统计",
		Run: func(cmd *cobra.Command, args []string) {
			stats, err := core.Services.Learning.Stats(cmd.Context())
			if err != nil {
				slog.Error("统计失败", "error", err)
				os.Exit(1)
			}
			fmt.Printf("周报总数:     %d\n", stats.TotalReports)
			fmt.Printf("人工修正数:   %d\n", stats.Corrections)
			fmt.Printf("学习模式数:   %d\n", stats.Patterns)
			fmt.Printf("已索引案例:   %d\n", stats.IndexedCases)
			fmt.Printf("向量检索可用: %v\n", stats.VectorAvailable)
		},
	}
}

// exportCmd 导出周报为 CSV
func exportCmd() *cobra.Command {
	var store string
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出周报为 CSV",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			summaries, err := core.Services.Reports.History(ctx, store)
			if err != nil {
				slog.Error("查询失败", "error", err)
				os.Exit(1)
			}

			f, err := os.Create(output)
			if err != nil {
				slog.Error("创建导出文件失败", "error", err)
				os.Exit(1)
			}
			defer f.Close()

			w := csv.NewWriter(f)
			header := []string{"store", "monday_date", "topics", "impact_day", "quantitative_data", "generated_trend", "modified_trend"}
			if err := w.Write(header); err != nil {
				slog.Error("写入导出文件失败", "error", err)
				os.Exit(1)
			}

			for _, s := range summaries {
				report, err := core.Services.Reports.Get(ctx, s.StoreName, s.MondayDate)
				if err != nil {
					slog.Warn("跳过一条记录", "store", s.StoreName, "week", s.MondayDate, "error", err)
					continue
				}
				row := []string{
					s.StoreName,
					s.MondayDate,
					report.Topics,
					report.ImpactDay,
					report.QuantitativeData,
					report.GeneratedReport.Trend,
					report.ModifiedReport.Trend,
				}
				if err := w.Write(row); err != nil {
					slog.Error("写入导出文件失败", "error", err)
					os.Exit(1)
				}
			}
			w.Flush()
			if err := w.Error(); err != nil {
				slog.Error("导出失败", "error", err)
				os.Exit(1)
			}
			fmt.Printf("已导出 %d 周数据到 %s\n", len(summaries), output)
		},
	}

	cmd.Flags().StringVar(&store, "store", "", "只导出指定店铺")
	cmd.Flags().StringVarP(&output, "output", "o", "reports.csv", "导出文件路径")
	return cmd
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "-"
}

func printDaily(daily map[string]schema.DayEntry) {
	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if len(dates) == 0 {
		return
	}
	fmt.Println("【日次レポート】")
	for _, d := range dates {
		entry := daily[d]
		if entry.Trend == "" && len(entry.Factors) == 0 {
			continue
		}
		fmt.Printf("  %s 動向: %s\n", d, entry.Trend)
		if len(entry.Factors) > 0 {
			fmt.Printf("       要因: %s\n", strings.Join(entry.Factors, " / "))
		}
	}
}

func printReport(trend string, factors, questions []string) {
	fmt.Printf("動向:\n%s\n", trend)
	if len(factors) > 0 {
		fmt.Println("要因:")
		for _, f := range factors {
			fmt.Printf("  - %s\n", f)
		}
	}
	if len(questions) > 0 {
		fmt.Println("質問:")
		for _, q := range questions {
			fmt.Printf("  - %s\n", q)
		}
	}
}
