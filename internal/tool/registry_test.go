package tool

import (
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(Tool{
		Name:        "echo",
		Description: "Echoes its input.",
		Execute: func(args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			return s, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	tl, ok := r.Get("echo")
	if !ok {
		t.Fatal("registered tool not found")
	}
	if tl.DisplayName != "echo" {
		t.Fatalf("display name not defaulted: %q", tl.DisplayName)
	}
	out, err := tl.Execute(map[string]any{"text": "hi"})
	if err != nil || out != "hi" {
		t.Fatalf("execute: %q, %v", out, err)
	}

	if _, ok := r.Get("missing"); ok {
		t.Fatal("unknown tool resolved")
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(Tool{Execute: func(map[string]any) (string, error) { return "", nil }}); err == nil {
		t.Fatal("nameless tool accepted")
	}
	if err := r.Register(Tool{Name: "no-exec"}); err == nil {
		t.Fatal("tool without execute accepted")
	}
}

func TestSchemasPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry(RegisterBuiltins)
	schemas := r.Schemas()
	if len(schemas) != r.Len() {
		t.Fatalf("got %d schemas for %d tools", len(schemas), r.Len())
	}
	want := []string{"schedule_task", "list_tasks", "delete_task", "get_current_time", "send_file"}
	if len(schemas) != len(want) {
		t.Fatalf("got %d builtins, want %d", len(schemas), len(want))
	}
	for i, name := range want {
		if schemas[i].Name != name {
			t.Fatalf("schema %d is %s, want %s", i, schemas[i].Name, name)
		}
	}
}

func TestReloadRerunsHook(t *testing.T) {
	calls := 0
	r := NewRegistry(func(r *Registry) {
		calls++
		_ = r.Register(Tool{
			Name:    "counter",
			Execute: func(map[string]any) (string, error) { return "", nil },
		})
	})
	if calls != 1 || r.Len() != 1 {
		t.Fatalf("hook ran %d times, len %d", calls, r.Len())
	}
	r.Reload()
	if calls != 2 || r.Len() != 1 {
		t.Fatalf("after reload: hook ran %d times, len %d", calls, r.Len())
	}
}
