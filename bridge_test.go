package labtemplar_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nikitaxru/labtemplar"
)

// BridgeSuite — сьют тестов внепроцессного вычислителя
type BridgeSuite struct {
	suite.Suite
}

func TestBridgeSuite(t *testing.T) {
	suite.Run(t, new(BridgeSuite))
}

// script пишет исполняемый shell-скрипт, играющий роль вычислителя
func (s *BridgeSuite) script(body string) string {
	path := filepath.Join(s.T().TempDir(), "evaluator.sh")
	s.Require().NoError(os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// TestRenderSuccess — stdout вычислителя становится результатом
func (s *BridgeSuite) TestRenderSuccess() {
	b := labtemplar.NewBridge(s.script(`printf 'OK'`))
	out, err := b.Render(context.Background(), "<p>{{ 1 + 1 }}</p>")
	s.Require().NoError(err)
	s.Assert().Equal("OK", out)
}

// TestRenderPassesFile — вычислитель получает путь к временному файлу
// с исходным содержимым
func (s *BridgeSuite) TestRenderPassesFile() {
	b := labtemplar.NewBridge(s.script(`cat "$1"`))
	content := "<p>{{ 5 mg }}</p>"
	out, err := b.Render(context.Background(), content)
	s.Require().NoError(err)
	s.Assert().Equal(content, out)
}

// TestRenderFailure — ненулевой код выхода: ошибка плюс исходное содержимое
func (s *BridgeSuite) TestRenderFailure() {
	b := labtemplar.NewBridge(s.script(`echo 'сломалось' >&2; exit 3`))
	content := "<p>{{ 1 + 1 }}</p>"
	out, err := b.Render(context.Background(), content)
	s.Assert().Error(err)
	s.Assert().Equal(content, out, "документ рендерится без вычислений")
}

// TestRenderMissingEvaluator — вычислителя нет на диске
func (s *BridgeSuite) TestRenderMissingEvaluator() {
	b := labtemplar.NewBridge(filepath.Join(s.T().TempDir(), "нет-такого"))
	content := "исходный текст"
	out, err := b.Render(context.Background(), content)
	s.Assert().Error(err)
	s.Assert().Equal(content, out)
}

// TestRenderContextTimeout — зависший вычислитель обрывается контекстом
func (s *BridgeSuite) TestRenderContextTimeout() {
	b := labtemplar.NewBridge(s.script(`sleep 60`))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	content := "<p>{{ 1 + 1 }}</p>"
	out, err := b.Render(ctx, content)
	s.Assert().Error(err)
	s.Assert().Equal(content, out)
}
