package acp

import "testing"

func TestResolveLaunchExplicitCommandWins(t *testing.T) {
	resolved, err := ResolveLaunch(LaunchConfig{
		Executor: ExecutorOpenCode,
		Command:  "my-custom-agent",
		Args:     []string{"--flag"},
	}, "/proj")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Command != "my-custom-agent" || len(resolved.Args) != 1 {
		t.Fatalf("expected explicit command to win, got %+v", resolved)
	}
	if resolved.Cwd != "/proj" {
		t.Fatalf("expected cwd to default to projectPath, got %q", resolved.Cwd)
	}
}

func TestResolveLaunchExecutorMapsToBuiltin(t *testing.T) {
	resolved, err := ResolveLaunch(LaunchConfig{Executor: ExecutorClaudeCode}, "/proj")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Command != "claude-code-acp" {
		t.Fatalf("expected built-in claude-code-acp command, got %q", resolved.Command)
	}
}

func TestResolveLaunchUnknownExecutorFails(t *testing.T) {
	if _, err := ResolveLaunch(LaunchConfig{Executor: "nonexistent"}, "/proj"); err == nil {
		t.Fatal("expected an error for an unknown executor with no explicit command")
	}
}

func TestResolveLaunchRelativeCwdJoinsProjectPath(t *testing.T) {
	resolved, err := ResolveLaunch(LaunchConfig{Executor: ExecutorCodex, Cwd: "subdir"}, "/proj")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Cwd != "/proj/subdir" {
		t.Fatalf("expected relative cwd resolved against projectPath, got %q", resolved.Cwd)
	}
}

func TestSandboxPathRejectsEscape(t *testing.T) {
	c := &Client{projectPath: "/proj"}
	if _, err := c.sandboxPath("../../etc/passwd"); err == nil {
		t.Fatal("expected escaping path to be rejected")
	}
	if _, err := c.sandboxPath("src/main.go"); err != nil {
		t.Fatalf("expected path within project to be accepted, got %v", err)
	}
}
