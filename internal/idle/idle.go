// Package idle tracks whether the screen is blanked by the screensaver or
// the machine is about to sleep, so the strip can go dark with it.
package idle

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"wlambilight.app/ambilight/internal/apis"
)

const (
	screenSaverName      = "org.freedesktop.ScreenSaver"
	screenSaverPath      = dbus.ObjectPath("/org/freedesktop/ScreenSaver")
	screenSaverInterface = "org.freedesktop.ScreenSaver"
	activeChangedMember  = "ActiveChanged"
	getActiveCallName    = screenSaverInterface + ".GetActive"

	login1Path              = dbus.ObjectPath("/org/freedesktop/login1")
	login1ManagerInterface  = "org.freedesktop.login1.Manager"
	prepareForSleepMember   = "PrepareForSleep"
	activeChangedSignalName = screenSaverInterface + "." + activeChangedMember
	prepareSignalName       = login1ManagerInterface + "." + prepareForSleepMember
)

// Watcher follows the screensaver on the session bus and suspend on the
// system bus. A missing bus or service leaves that source inactive.
type Watcher struct {
	log zerolog.Logger

	screenSaver atomic.Bool
	sleeping    atomic.Bool

	subs []*apis.Subscription
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Watch subscribes to both sources. It never fails; problems are logged.
func Watch(log zerolog.Logger) *Watcher {
	w := &Watcher{log: log, done: make(chan struct{})}

	if conn, err := apis.Connect(apis.SessionBus); err != nil {
		log.Warn().Err(err).Stringer("bus", apis.SessionBus).Msg("bus unavailable, screensaver state ignored")
	} else {
		w.subscribe(conn, screenSaverPath, screenSaverInterface, activeChangedMember)
		var active bool
		if err := apis.Call(conn, screenSaverName, screenSaverPath, getActiveCallName, &active); err != nil {
			log.Debug().Err(err).Msg("screensaver state unknown")
		} else {
			w.screenSaver.Store(active)
		}
	}

	if conn, err := apis.Connect(apis.SystemBus); err != nil {
		log.Warn().Err(err).Stringer("bus", apis.SystemBus).Msg("bus unavailable, suspend ignored")
	} else {
		w.subscribe(conn, login1Path, login1ManagerInterface, prepareForSleepMember)
	}
	return w
}

func (w *Watcher) subscribe(conn *dbus.Conn, path dbus.ObjectPath, iface, member string) {
	sub, err := apis.ListenOnSignal(conn, path, iface, member)
	if err != nil {
		w.log.Warn().Err(err).Str("signal", iface+"."+member).Msg("subscribing")
		return
	}
	w.subs = append(w.subs, sub)
	w.wg.Add(1)
	go w.loop(sub.Signals)
}

func (w *Watcher) loop(signals <-chan *dbus.Signal) {
	defer w.wg.Done()
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return
			}
			w.handle(sig)
		case <-w.done:
			return
		}
	}
}

// handle applies one signal. Shared connections deliver every subscribed
// signal to every channel, so unrelated ones are skipped.
func (w *Watcher) handle(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	switch sig.Name {
	case activeChangedSignalName:
		if w.screenSaver.Swap(active) != active {
			w.log.Info().Bool("active", active).Msg("screensaver")
		}
	case prepareSignalName:
		if w.sleeping.Swap(active) != active {
			w.log.Info().Bool("sleeping", active).Msg("suspend")
		}
	}
}

// Idle reports whether the screen is blanked or the system is suspending.
func (w *Watcher) Idle() bool {
	return w.screenSaver.Load() || w.sleeping.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		for _, s := range w.subs {
			err = errors.Join(err, s.Close())
		}
		w.wg.Wait()
	})
	return err
}
