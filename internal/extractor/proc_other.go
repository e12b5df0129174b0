//go:build !unix

package extractor

import "os/exec"

// setProcessGroup без групп процессов остаётся поведение exec.CommandContext по умолчанию
func setProcessGroup(*exec.Cmd) {}
