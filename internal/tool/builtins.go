package tool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tjohnman/modular-ai-agent/internal/sched"
)

// RegisterBuiltins installs the built-in tool set. The scheduler and
// workspace handles arrive per-call through the injected context
// arguments, so the hook itself needs no dependencies.
func RegisterBuiltins(r *Registry) {
	for _, t := range []Tool{
		scheduleTaskTool(),
		listTasksTool(),
		deleteTaskTool(),
		currentTimeTool(),
		sendFileTool(),
	} {
		_ = r.Register(t)
	}
}

func schedulerFromArgs(args map[string]any) (*sched.Scheduler, error) {
	s, ok := args[ArgScheduler].(*sched.Scheduler)
	if !ok || s == nil {
		return nil, fmt.Errorf("scheduler instance not available")
	}
	return s, nil
}

func scheduleTaskTool() Tool {
	return Tool{
		Name:        "schedule_task",
		DisplayName: "Scheduling task",
		Description: "Schedules a task to be executed at a specific time or recurrently.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The prompt to execute.",
				},
				"when": map[string]any{
					"type":        "string",
					"description": "When to execute. ISO 8601 datetime (YYYY-MM-DDTHH:MM:SS) or a relative time like 'in 5 minutes'. Used for one-time tasks.",
				},
				"cron": map[string]any{
					"type":        "string",
					"description": "Cron expression for recurrent tasks. Use either 'when' or 'cron', not both.",
				},
			},
			"required": []string{"prompt"},
		},
		Execute: func(args map[string]any) (string, error) {
			scheduler, err := schedulerFromArgs(args)
			if err != nil {
				return "", err
			}
			prompt, _ := args["prompt"].(string)
			if prompt == "" {
				return "", fmt.Errorf("prompt is required")
			}
			when, _ := args["when"].(string)
			cronExpr, _ := args["cron"].(string)
			channelName, _ := args[ArgChannelName].(string)

			var triggerType, triggerValue string
			switch {
			case cronExpr != "":
				triggerType = sched.TriggerCron
				triggerValue = cronExpr
			case when != "":
				triggerType = sched.TriggerAt
				triggerValue, err = resolveWhen(when, time.Now())
				if err != nil {
					return "", err
				}
			default:
				return "", fmt.Errorf("must provide either 'when' or 'cron'")
			}

			// The scheduler and the dispatcher share the same store, so
			// the store's current session file is the session to bind
			// the task to.
			task, err := scheduler.Add(prompt, scheduler.CurrentSessionFile(), triggerType, triggerValue, channelName)
			if err != nil {
				return "", fmt.Errorf("schedule task: %w", err)
			}
			return fmt.Sprintf("Task scheduled successfully. ID: %s. Next run: %s", task.ID, task.NextRun.Format(time.RFC3339)), nil
		},
	}
}

// resolveWhen converts "in N minutes/hours/seconds/days" to an absolute
// RFC 3339 instant; anything else must already be ISO 8601.
func resolveWhen(when string, now time.Time) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(when))
	if strings.HasPrefix(lower, "in ") {
		fields := strings.Fields(lower[3:])
		if len(fields) < 2 {
			return "", fmt.Errorf("could not parse relative time %q", when)
		}
		amount, err := strconv.Atoi(fields[0])
		if err != nil {
			return "", fmt.Errorf("could not parse relative time %q", when)
		}
		unit := fields[1]
		var d time.Duration
		switch {
		case strings.Contains(unit, "second"):
			d = time.Duration(amount) * time.Second
		case strings.Contains(unit, "minute"):
			d = time.Duration(amount) * time.Minute
		case strings.Contains(unit, "hour"):
			d = time.Duration(amount) * time.Hour
		case strings.Contains(unit, "day"):
			d = time.Duration(amount) * 24 * time.Hour
		default:
			return "", fmt.Errorf("unsupported time unit in %q", when)
		}
		return now.Add(d).Format(time.RFC3339), nil
	}
	if _, err := sched.NextRun(sched.TriggerAt, when, now); err != nil {
		return "", fmt.Errorf("invalid date format %q: use ISO 8601 or 'in X minutes'", when)
	}
	return when, nil
}

func listTasksTool() Tool {
	return Tool{
		Name:        "list_tasks",
		DisplayName: "Listing tasks",
		Description: "Lists all scheduled tasks.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Execute: func(args map[string]any) (string, error) {
			scheduler, err := schedulerFromArgs(args)
			if err != nil {
				return "", err
			}
			tasks := scheduler.List()
			if len(tasks) == 0 {
				return "No scheduled tasks found.", nil
			}
			var sb strings.Builder
			sb.WriteString("Scheduled Tasks:\n")
			for _, task := range tasks {
				fmt.Fprintf(&sb, "- ID: %s\n", task.ID)
				fmt.Fprintf(&sb, "  Prompt: %s\n", task.Prompt)
				fmt.Fprintf(&sb, "  Channel: %s\n", task.ChannelName)
				fmt.Fprintf(&sb, "  Trigger: %s = %s\n", task.TriggerType, task.TriggerValue)
				fmt.Fprintf(&sb, "  Next Run: %s\n", task.NextRun.Format(time.RFC3339))
				fmt.Fprintf(&sb, "  Session: %s\n", task.SessionFile)
				sb.WriteString(strings.Repeat("-", 20) + "\n")
			}
			return sb.String(), nil
		},
	}
}

func deleteTaskTool() Tool {
	return Tool{
		Name:        "delete_task",
		DisplayName: "Deleting task",
		Description: "Deletes a scheduled task by its ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The ID of the task to delete.",
				},
			},
			"required": []string{"task_id"},
		},
		Execute: func(args map[string]any) (string, error) {
			scheduler, err := schedulerFromArgs(args)
			if err != nil {
				return "", err
			}
			taskID, _ := args["task_id"].(string)
			if taskID == "" {
				return "", fmt.Errorf("task_id is required")
			}
			if scheduler.Remove(taskID) {
				return fmt.Sprintf("Task %s deleted successfully.", taskID), nil
			}
			return fmt.Sprintf("Task %s not found.", taskID), nil
		},
	}
}

func currentTimeTool() Tool {
	return Tool{
		Name:        "get_current_time",
		DisplayName: "Getting the time",
		Description: "Returns the current date and time.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Execute: func(args map[string]any) (string, error) {
			now := time.Now()
			return fmt.Sprintf("The current date and time is %s.", now.Format("2006-01-02 15:04:05 MST")), nil
		},
	}
}

func sendFileTool() Tool {
	return Tool{
		Name:        "send_file",
		DisplayName: "Sending file",
		Description: "Queues a file from the workspace for delivery by placing it into the output pipeline.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "Path to the file in the workspace (absolute or relative).",
				},
				"output_name": map[string]any{
					"type":        "string",
					"description": "Optional filename to use when placing the file into output.",
				},
				"mode": map[string]any{
					"type":        "string",
					"enum":        []string{"move", "copy"},
					"description": "Whether to move or copy the file into output.",
				},
			},
			"required": []string{"file_path"},
		},
		Execute: func(args map[string]any) (string, error) {
			workspace, _ := args[ArgWorkspace].(string)
			if workspace == "" {
				return "", fmt.Errorf("workspace directory not available")
			}
			filePath, _ := args["file_path"].(string)
			if filePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			mode, _ := args["mode"].(string)
			outputName, _ := args["output_name"].(string)

			workspace, err := filepath.Abs(workspace)
			if err != nil {
				return "", err
			}
			resolved := filePath
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(workspace, resolved)
			}
			resolved, err = filepath.Abs(resolved)
			if err != nil {
				return "", err
			}
			if !strings.HasPrefix(resolved, workspace+string(os.PathSeparator)) {
				return "", fmt.Errorf("file_path must be inside the workspace")
			}
			info, err := os.Stat(resolved)
			if err != nil || info.IsDir() {
				return "", fmt.Errorf("file not found: %s", filePath)
			}

			outputDir := filepath.Join(workspace, "output")
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return "", fmt.Errorf("create output dir: %w", err)
			}
			destName := outputName
			if destName == "" {
				destName = filepath.Base(resolved)
			}
			destPath := filepath.Join(outputDir, destName)
			if destPath == resolved {
				return fmt.Sprintf("File already queued for delivery: %s", destName), nil
			}
			if _, err := os.Stat(destPath); err == nil {
				ext := filepath.Ext(destName)
				base := strings.TrimSuffix(destName, ext)
				destName = fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext)
				destPath = filepath.Join(outputDir, destName)
			}

			if mode == "copy" {
				if err := copyFile(resolved, destPath); err != nil {
					return "", fmt.Errorf("queue file for delivery: %w", err)
				}
			} else {
				if err := os.Rename(resolved, destPath); err != nil {
					// Cross-device rename falls back to copy+remove.
					if err := copyFile(resolved, destPath); err != nil {
						return "", fmt.Errorf("queue file for delivery: %w", err)
					}
					_ = os.Remove(resolved)
				}
			}
			return fmt.Sprintf("Queued file for delivery: %s", destName), nil
		},
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
