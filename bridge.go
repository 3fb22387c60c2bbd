package labtemplar

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Мост к внепроцессному вычислителю: серверный рендер (экспорт PDF)
// прогоняет документ через отдельный процесс, чтобы сбой вычисления
// никогда не ронял рендер самого документа.

// Bridge вызывает вычислитель как подпроцесс: содержимое пишется во
// временный файл, stdout подпроцесса становится преобразованным документом.
type Bridge struct {
	evaluator string
}

// NewBridge создаёт мост к вычислителю по пути к исполняемому файлу.
func NewBridge(evaluator string) *Bridge {
	return &Bridge{evaluator: evaluator}
}

// Render преобразует содержимое через подпроцесс. При любой ошибке
// возвращается исходное содержимое и сама ошибка: вызывающий показывает
// документ без вычислений и поднимает предупреждение. Повторов нет —
// причина сбоя (нет вычислителя, битый вход) воспроизведётся точно так же.
// Таймаут не навязывается: ограничение времени несёт ctx вызывающего.
func (b *Bridge) Render(ctx context.Context, content string) (string, error) {
	tmp, err := os.CreateTemp("", "labtemplar-*.html")
	if err != nil {
		log.Printf("⚠️ Не удалось создать временный файл: %v", err)
		return content, fmt.Errorf("временный файл: %w", err)
	}
	tmpName := tmp.Name()
	// файл удаляется всегда, независимо от исхода вызова
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		log.Printf("⚠️ Не удалось записать временный файл: %v", err)
		return content, fmt.Errorf("запись временного файла: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return content, fmt.Errorf("закрытие временного файла: %w", err)
	}

	cmd := exec.CommandContext(ctx, b.evaluator, tmpName)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Printf("⚠️ Вычислитель завершился с ошибкой: %v; stderr: %s", err, strings.TrimSpace(stderr.String()))
		return content, fmt.Errorf("вычислитель %s: %w", b.evaluator, err)
	}
	return stdout.String(), nil
}
