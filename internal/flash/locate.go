package flash

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Well-known STM32CubeProgrammer install locations, checked before PATH.
var stm32CLICandidates = func() []string {
	if runtime.GOOS == "windows" {
		return []string{
			`C:\Program Files\STMicroelectronics\STM32Cube\STM32CubeProgrammer\bin\STM32_Programmer_CLI.exe`,
			`C:\Program Files (x86)\STMicroelectronics\STM32Cube\STM32CubeProgrammer\bin\STM32_Programmer_CLI.exe`,
		}
	}
	home, _ := os.UserHomeDir()
	return []string{
		"/usr/local/STMicroelectronics/STM32Cube/STM32CubeProgrammer/bin/STM32_Programmer_CLI",
		filepath.Join(home, "STMicroelectronics/STM32Cube/STM32CubeProgrammer/bin/STM32_Programmer_CLI"),
		// WSL reaching into a Windows installation
		"/mnt/c/Program Files/STMicroelectronics/STM32Cube/STM32CubeProgrammer/bin/STM32_Programmer_CLI.exe",
	}
}()

// locateSTM32CLI resolves the STM32_Programmer_CLI executable. An explicitly
// configured path wins; otherwise well-known install dirs, then PATH.
func locateSTM32CLI(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", newError(ErrToolMissing, PhaseIdle, "configured STM32 programmer %s: %v", configured, err)
		}
		return configured, nil
	}

	for _, candidate := range stm32CLICandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("STM32_Programmer_CLI"); err == nil {
		return path, nil
	}
	return "", newError(ErrToolMissing, PhaseIdle,
		"STM32_Programmer_CLI not found; install STM32CubeProgrammer or set stm32_programmer in the config")
}

// locateEsptool resolves the esptool executable.
func locateEsptool(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", newError(ErrToolMissing, PhaseIdle, "configured esptool %s: %v", configured, err)
		}
		return configured, nil
	}

	for _, name := range []string{"esptool", "esptool.py"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", newError(ErrToolMissing, PhaseIdle,
		"esptool not found; install with: pip install esptool, or set esptool in the config")
}
