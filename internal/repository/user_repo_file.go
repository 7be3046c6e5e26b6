package repository

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/vkotov/planhub/internal/model"
)

var _ UserRepository = &UserFileRepository{}

// UserFileRepository is the user directory: a yaml file of accounts, reloaded
// on change. Account issuance and management live outside this service.
type UserFileRepository struct {
	userFile string
	logger   *slog.Logger
	users    map[string]*model.User
	byEmail  map[string]*model.User

	watcher *fsnotify.Watcher

	mx sync.RWMutex
}

func NewFileUserRepo(userFile string) *UserFileRepository {
	um := &UserFileRepository{
		logger:   slog.Default().With("logger", "UserManager"),
		userFile: userFile,
		users:    make(map[string]*model.User),
		byEmail:  make(map[string]*model.User),
	}

	if err := um.loadUsersFile(); err != nil {
		um.logger.Error("error loading users file", slog.Any("error", err))
	}

	return um
}

func (r *UserFileRepository) loadUsersFile() error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, err := os.Lstat(r.userFile); os.IsNotExist(err) {
		// create empty file
		f, err := os.Create(r.userFile)
		if err != nil {
			return err
		}

		return f.Close()
	}

	dat, err := os.ReadFile(r.userFile)
	if err != nil {
		return err
	}

	users := make([]*model.User, 0)

	if err := yaml.Unmarshal(dat, &users); err != nil {
		return err
	}

	r.users = make(map[string]*model.User)
	r.byEmail = make(map[string]*model.User)

	for _, user := range users {
		if user.Login == "" {
			continue
		}

		r.users[user.Login] = user

		if e := user.GetEmail(); e != "" {
			r.byEmail[e] = user
		}
	}

	return nil
}

func (r *UserFileRepository) Start() error {
	var err error
	r.watcher, err = fsnotify.NewWatcher()

	if err != nil {
		return err
	}

	if err := r.watcher.Add(r.userFile); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-r.watcher.Events:
				if !ok {
					return
				}

				r.logger.Debug(fmt.Sprintf("event: %v", event))

				if event.Has(fsnotify.Write) && event.Name == r.userFile {
					r.logger.Info("users file is modified, reloading")

					if err := r.loadUsersFile(); err != nil {
						r.logger.Error("error", slog.Any("error", err))
					}
				}
			case err, ok := <-r.watcher.Errors:
				if !ok {
					return
				}

				r.logger.Error("error", slog.Any("error", err))
			}
		}
	}()

	return nil
}

func (r *UserFileRepository) Stop() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
}

func (r *UserFileRepository) GetUser(login string) *model.User {
	r.mx.RLock()
	defer r.mx.RUnlock()

	return r.users[login]
}

func (r *UserFileRepository) ResolveEmail(email string) *model.User {
	r.mx.RLock()
	defer r.mx.RUnlock()

	return r.byEmail[model.NormalizeEmail(email)]
}

func (r *UserFileRepository) CheckUserAuth(login, password string) bool {
	return r.GetUser(login).CheckPassword(password)
}
