package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kasuganosora/farmquest/game/community"
	"github.com/kasuganosora/farmquest/game/player"
	"github.com/kasuganosora/farmquest/game/quest"
	"github.com/kasuganosora/farmquest/game/quiz"
	"gopkg.in/yaml.v3"
)

// Seed file names looked up under Loader.Dir.
const (
	QuestsFile  = "quests.yaml"
	QuizzesFile = "quizzes.yaml"
	UsersFile   = "users.yaml"
	PostsFile   = "posts.yaml"
)

// Data is everything the game services are seeded with.
type Data struct {
	Quests   []quest.Quest
	Quizzes  []quiz.Quiz
	Accounts []player.Account
	Posts    []community.Post
	// Imported holds quizzes read from the optional workbook. They are merged
	// into the bank on top of Quizzes.
	Imported []quiz.Quiz
}

// Loader reads seed data. Each YAML file found in Dir replaces the matching
// built-in set; missing files keep the built-in one.
type Loader struct {
	Dir      string
	QuizXLSX string
}

// NewLoader creates a Loader. Both arguments may be empty.
func NewLoader(dir, quizXLSX string) *Loader {
	return &Loader{Dir: dir, QuizXLSX: quizXLSX}
}

// Load assembles the seed data.
func (l *Loader) Load() (*Data, error) {
	d := &Data{
		Quests:   DefaultQuests(),
		Quizzes:  DefaultQuizzes(),
		Accounts: DefaultAccounts(),
		Posts:    DefaultPosts(),
	}
	if l.Dir != "" {
		if err := loadYAMLOverride(l.path(QuestsFile), &d.Quests); err != nil {
			return nil, err
		}
		if err := loadYAMLOverride(l.path(QuizzesFile), &d.Quizzes); err != nil {
			return nil, err
		}
		if err := loadYAMLOverride(l.path(UsersFile), &d.Accounts); err != nil {
			return nil, err
		}
		if err := loadYAMLOverride(l.path(PostsFile), &d.Posts); err != nil {
			return nil, err
		}
	}
	if l.QuizXLSX != "" {
		imported, err := ImportQuizXLSX(l.QuizXLSX)
		if err != nil {
			return nil, err
		}
		d.Imported = imported
	}
	return d, nil
}

func (l *Loader) path(file string) string {
	return filepath.Join(l.Dir, file)
}

func loadYAMLArray[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	var arr []T
	if err := yaml.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return arr, nil
}

// loadYAMLOverride replaces *out with the file's contents when the file
// exists.
func loadYAMLOverride[T any](path string, out *[]T) error {
	arr, err := loadYAMLArray[T](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	*out = arr
	return nil
}

// WriteYAML dumps v to path, creating parent directories. Used to scaffold
// an override directory from the built-in data.
func WriteYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("resource: mkdir: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("resource: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("resource: write %s: %w", path, err)
	}
	return nil
}
