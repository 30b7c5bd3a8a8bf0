package oracle

import (
	"context"
	"math"
	"strings"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/models"
)

// LevelDraft 生成的关卡草稿
type LevelDraft struct {
	Description string
	Difficulty  int
}

// LevelDesigner 关卡设计器
type LevelDesigner struct {
	completer Completer
}

// NewLevelDesigner 创建关卡设计器
func NewLevelDesigner(completer Completer) *LevelDesigner {
	return &LevelDesigner{completer: completer}
}

// GenerateLevel 按主题与目标难度生成关卡，难度被限制在 [1,10]
func (d *LevelDesigner) GenerateLevel(ctx context.Context, theme string, baseDifficulty int) (LevelDraft, error) {
	raw, err := d.completer.Complete(ctx, designerSystemPrompt, designerUserPrompt(theme, baseDifficulty))
	if err != nil {
		return LevelDraft{}, err
	}

	var out struct {
		LevelDescription string  `json:"levelDescription"`
		Difficulty       float64 `json:"difficulty"`
	}
	if err := decodeStrict("level_draft", levelDraftSchema, []byte(raw), &out); err != nil {
		return LevelDraft{}, err
	}

	description := strings.TrimSpace(out.LevelDescription)
	if description == "" {
		return LevelDraft{}, apperrors.New(apperrors.ErrOracleMalformed, "关卡描述为空")
	}

	return LevelDraft{
		Description: description,
		Difficulty:  ClampDifficulty(int(math.Round(out.Difficulty))),
	}, nil
}

// ClampDifficulty 将难度限制在允许范围内
func ClampDifficulty(d int) int {
	if d < models.MinDifficulty {
		return models.MinDifficulty
	}
	if d > models.MaxDifficulty {
		return models.MaxDifficulty
	}
	return d
}
