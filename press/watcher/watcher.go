// Package watcher observes directory trees and invokes bound tasks when files matching their patterns change.
//
// Every matching event starts an independent invocation; rapid changes are not coalesced, so bound tasks must
// tolerate overlapping runs.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
)

// Start a watcher with the provided options.
func Start(options ...Option) (Interface, error) {
	wr := &watcher{log: zerolog.Nop()}
	for _, option := range options {
		err := option(wr)
		if err != nil {
			return nil, err
		}
	}
	err := wr.start()
	if err != nil {
		return nil, err
	}
	return wr, nil
}

// An Option is a function that can manipulate a watcher during construction
type Option func(*watcher) error

// A Binding invokes Task with the changed name whenever Match accepts it.  Names are slash separated and relative to
// the watcher root.
type Binding struct {
	Name  string
	Match func(name string) bool
	Task  func(name string)
}

// Bind adds bindings to the watcher.
func Bind(bindings ...Binding) Option {
	return func(wr *watcher) error {
		for _, b := range bindings {
			if b.Match == nil || b.Task == nil {
				return fmt.Errorf(`binding %q needs both a matcher and a task`, b.Name)
			}
		}
		wr.bindings = append(wr.bindings, bindings...)
		return nil
	}
}

// Exclude specifies one or more base name patterns to ignore, such as editor swap files.
// If no patterns are specified, dot files, backup files and swap files are excluded.
// If a file matches both a binding and an exclude pattern, it is excluded.
func Exclude(patterns ...string) Option {
	return func(wr *watcher) (err error) {
		wr.excludes, err = appendPatterns(wr.excludes, patterns...)
		return
	}
}

// DefaultExcludes are used when no Exclude option is given.
var DefaultExcludes = []string{`.*`, `*~`, `*.swp`, `*.swx`, `#*#`, `*.tmp`}

func appendPatterns(seq []glob.Glob, patterns ...string) ([]glob.Glob, error) {
	for _, pattern := range patterns {
		rx, err := glob.Compile(pattern, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf(`%w in %q`, err, pattern)
		}
		seq = append(seq, rx)
	}
	return seq, nil
}

// Root specifies the directory that names passed to bindings are relative to.
// If no root is specified, the current working directory is used.
func Root(dir string) Option {
	return func(wr *watcher) error {
		wr.root = dir
		return nil
	}
}

// Directory specifies one or more directories to watch recursively.
// If no directories are specified, the root is watched.  A directory that does not exist yet is watched from its
// closest existing parent until it is created.
func Directory(paths ...string) Option {
	return func(wr *watcher) error {
		wr.directories = append(wr.directories, paths...)
		return nil
	}
}

// Logger sets the logger used to report watch errors and dispatched changes.
func Logger(log zerolog.Logger) Option {
	return func(wr *watcher) error {
		wr.log = log
		return nil
	}
}

// Interface describes the watcher interface
type Interface interface {
	// Shutdown stops watching and waits for any running tasks to finish.
	Shutdown()
}

type watcher struct {
	excludes    []glob.Glob
	bindings    []Binding
	root        string
	directories []string
	log         zerolog.Logger

	fsnotify   *fsnotify.Watcher
	shutdownCh chan struct{} // sent when the watcher should shut down
	doneCh     chan struct{} // closed when the watcher is done
	tasks      sync.WaitGroup
}

func (wr *watcher) start() (err error) {
	if wr.root == `` {
		wr.root = `.`
	}
	wr.root, err = filepath.Abs(wr.root)
	if err != nil {
		return err
	}
	if len(wr.directories) == 0 {
		wr.directories = []string{wr.root}
	}
	if len(wr.excludes) == 0 {
		wr.excludes, err = appendPatterns(nil, DefaultExcludes...)
		if err != nil {
			return err
		}
	}
	wr.fsnotify, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for i, dir := range wr.directories {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(wr.root, dir)
		}
		wr.directories[i] = filepath.Clean(dir)
	}
	for _, dir := range wr.directories {
		err := wr.watch(dir, false)
		if err != nil {
			wr.fsnotify.Close()
			return err
		}
	}
	wr.shutdownCh = make(chan struct{})
	wr.doneCh = make(chan struct{})
	go wr.process()
	return nil
}

// watch adds dir and everything under it.  If dir is missing, its closest existing parent is watched instead so that
// its creation is noticed.
func (wr *watcher) watch(dir string, dispatch bool) error {
	_, err := os.Stat(dir)
	if err == nil {
		return wr.addTree(dir, dispatch)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	parent := filepath.Dir(dir)
	for parent != filepath.Dir(parent) {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		parent = filepath.Dir(parent)
	}
	err = wr.fsnotify.Add(parent)
	if err != nil {
		return err
	}
	wr.log.Info().Str(`dir`, dir).Msg(`waiting for directory to be created`)
	if _, err := os.Stat(dir); err == nil {
		// created while the parent was being added.
		return wr.addTree(dir, true)
	}
	return nil
}

// addTree watches every directory under dir.  With dispatch set, the files found are treated as created.
func (wr *watcher) addTree(dir string, dispatch bool) error {
	return filepath.WalkDir(dir, func(path string, info fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case info.IsDir():
			return wr.fsnotify.Add(path)
		case dispatch && info.Type().IsRegular():
			wr.dispatch(path)
		}
		return nil
	})
}

// created handles a new directory: inside a watched tree it is added along with anything already in it, and above a
// missing watched directory it brings that directory one step closer.
func (wr *watcher) created(path string) {
	for _, dir := range wr.directories {
		var err error
		switch {
		case within(path, dir):
			err = wr.addTree(path, true)
		case within(dir, path):
			err = wr.watch(dir, true)
		default:
			continue
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			wr.log.Warn().Err(err).Str(`dir`, path).Msg(`could not watch new directory`)
		}
		return
	}
}

// within reports whether path is dir or inside it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != `..` && !strings.HasPrefix(rel, `..`+string(filepath.Separator))
}

// watched reports whether path is inside one of the watched directories.
func (wr *watcher) watched(path string) bool {
	for _, dir := range wr.directories {
		if within(path, dir) {
			return true
		}
	}
	return false
}

func (wr *watcher) Shutdown() {
	select {
	case wr.shutdownCh <- struct{}{}:
	case <-wr.doneCh:
	}
	<-wr.doneCh
	wr.tasks.Wait()
}

func (wr *watcher) process() {
	defer close(wr.doneCh)
	defer wr.fsnotify.Close()
	for {
		select {
		case <-wr.shutdownCh:
			return
		case event, ok := <-wr.fsnotify.Events:
			if !ok {
				return
			}
			wr.processNotification(event)
		case err, ok := <-wr.fsnotify.Errors:
			if !ok {
				return
			}
			wr.log.Warn().Err(err).Msg(`watch error`)
		}
	}
}

func (wr *watcher) processNotification(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			wr.created(event.Name)
			return
		}
		wr.dispatch(event.Name)
	} else if event.Has(fsnotify.Write) {
		wr.dispatch(event.Name)
	} else if event.Has(fsnotify.Remove) {
		_ = wr.fsnotify.Remove(event.Name)
		wr.dispatch(event.Name)
		wr.removed(event.Name)
	} else if event.Has(fsnotify.Rename) {
		wr.dispatch(event.Name)
	}
}

// removed waits for a watched directory to come back after it was removed.
func (wr *watcher) removed(path string) {
	for _, dir := range wr.directories {
		if path != dir {
			continue
		}
		err := wr.watch(dir, true)
		if err != nil {
			wr.log.Warn().Err(err).Str(`dir`, dir).Msg(`could not wait for removed directory`)
		}
	}
}

func (wr *watcher) dispatch(path string) {
	if !wr.watched(path) || wr.excluded(filepath.Base(path)) {
		return
	}
	rel, err := filepath.Rel(wr.root, path)
	if err != nil {
		return
	}
	name := filepath.ToSlash(rel)
	for _, b := range wr.bindings {
		if b.Match(name) {
			wr.log.Debug().Str(`file`, name).Str(`task`, b.Name).Msg(`change detected`)
			wr.tasks.Add(1)
			go func(task func(string)) {
				defer wr.tasks.Done()
				task(name)
			}(b.Task)
		}
	}
}

func (wr *watcher) excluded(base string) bool {
	for _, rx := range wr.excludes {
		if rx.Match(base) {
			return true
		}
	}
	return false
}
