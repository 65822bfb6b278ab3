package display

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

// keysyms that close the viewer
const (
	keysymQ      xproto.Keysym = 0x0071
	keysymEscape xproto.Keysym = 0xff1b
)

type x11Surface struct {
	conn     *xgb.Conn
	screen   *xproto.ScreenInfo
	window   xproto.Window
	gc       xproto.Gcontext
	width    int
	height   int
	wmDelete xproto.Atom

	minKeycode  xproto.Keycode
	keysymsPer  int
	keysyms     []xproto.Keysym
	bytesPerPix int
	scanPad     int
	buf         []byte
}

func newX11Surface(cfg Config) (*x11Surface, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	s := &x11Surface{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		width:  cfg.Width,
		height: cfg.Height,
	}
	if err := s.create(cfg.Title); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *x11Surface) create(title string) error {
	log := logger.WithComponent("display")

	if err := s.loadFormats(); err != nil {
		return err
	}
	if err := s.loadKeymap(); err != nil {
		return err
	}

	wid, err := xproto.NewWindowId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	s.window = wid

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify | xproto.EventMaskKeyPress,
	}
	err = xproto.CreateWindowChecked(
		s.conn,
		s.screen.RootDepth,
		s.window,
		s.screen.Root,
		0, 0,
		uint16(s.width), uint16(s.height),
		0,
		xproto.WindowClassInputOutput,
		s.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := s.setTitle(title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := s.setClass("sauron", "SauronThermal"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}
	if err := s.watchDelete(); err != nil {
		log.Warn().Err(err).Msg("Failed to register WM_DELETE_WINDOW")
	}

	if err := xproto.MapWindowChecked(s.conn, s.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	s.gc = gc
	err = xproto.CreateGCChecked(
		s.conn,
		s.gc,
		xproto.Drawable(s.window),
		xproto.GcForeground|xproto.GcBackground,
		[]uint32{0xffffffff, 0x00000000},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	s.conn.Sync()

	log.Debug().
		Uint32("window_id", uint32(s.window)).
		Uint32("gc_id", uint32(s.gc)).
		Int("bytes_per_pixel", s.bytesPerPix).
		Msg("X11 window ready")
	return nil
}

// loadFormats finds the pixmap layout of the root depth
func (s *x11Surface) loadFormats() error {
	for _, f := range xproto.Setup(s.conn).PixmapFormats {
		if f.Depth == s.screen.RootDepth {
			s.bytesPerPix = int(f.BitsPerPixel) / 8
			s.scanPad = int(f.ScanlinePad) / 8
			break
		}
	}
	if s.bytesPerPix != 3 && s.bytesPerPix != 4 {
		return fmt.Errorf("unsupported pixmap format for depth %d (%d bytes per pixel)", s.screen.RootDepth, s.bytesPerPix)
	}
	return nil
}

func (s *x11Surface) loadKeymap() error {
	setup := xproto.Setup(s.conn)
	s.minKeycode = setup.MinKeycode
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(s.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return fmt.Errorf("failed to get keyboard mapping: %w", err)
	}
	s.keysymsPer = int(reply.KeysymsPerKeycode)
	s.keysyms = reply.Keysyms
	return nil
}

func (s *x11Surface) keysym(code xproto.Keycode) xproto.Keysym {
	i := int(code-s.minKeycode) * s.keysymsPer
	if code < s.minKeycode || i >= len(s.keysyms) {
		return 0
	}
	return s.keysyms[i]
}

// Draw converts img to the server's pixel layout and puts it on the window
func (s *x11Surface) Draw(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("image size mismatch: got %dx%d, expected %dx%d", b.Dx(), b.Dy(), s.width, s.height)
	}

	stride := s.width * s.bytesPerPix
	if s.scanPad > 0 {
		stride = (stride + s.scanPad - 1) / s.scanPad * s.scanPad
	}
	if need := stride * s.height; len(s.buf) != need {
		s.buf = make([]byte, need)
	}

	// BGRx, matching the usual 0xff0000/0xff00/0xff visual masks
	for y := 0; y < s.height; y++ {
		row := s.buf[y*stride:]
		src := img.Pix[y*img.Stride:]
		for x := 0; x < s.width; x++ {
			d, p := row[x*s.bytesPerPix:], src[x*4:]
			d[0], d[1], d[2] = p[2], p[1], p[0]
		}
	}

	err := xproto.PutImageChecked(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.window),
		s.gc,
		uint16(s.width), uint16(s.height),
		0, 0,
		0,
		s.screen.RootDepth,
		s.buf,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to put image: %w", err)
	}
	return nil
}

// Poll drains the event queue without blocking
func (s *x11Surface) Poll() (bool, error) {
	quit := false
	for {
		ev, xerr := s.conn.PollForEvent()
		if ev == nil && xerr == nil {
			return quit, nil
		}
		if xerr != nil {
			return quit, fmt.Errorf("X11 error: %s", xerr.Error())
		}
		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			switch s.keysym(e.Detail) {
			case keysymQ, keysymEscape:
				quit = true
			}
		case xproto.ClientMessageEvent:
			if e.Format == 32 && s.wmDelete != 0 && xproto.Atom(e.Data.Data32[0]) == s.wmDelete {
				quit = true
			}
		case xproto.DestroyNotifyEvent:
			quit = true
		}
	}
}

func (s *x11Surface) Close() error {
	if s.gc != 0 {
		xproto.FreeGC(s.conn, s.gc)
	}
	if s.window != 0 {
		xproto.DestroyWindow(s.conn, s.window)
		s.conn.Sync()
	}
	s.conn.Close()
	return nil
}

func (s *x11Surface) setTitle(title string) error {
	nameAtom, err := s.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := s.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		nameAtom, utf8Atom, 8, uint32(len(title)), []byte(title)).Check()
}

func (s *x11Surface) setClass(instance, class string) error {
	classAtom, err := s.atom("WM_CLASS")
	if err != nil {
		return err
	}
	v := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		classAtom, xproto.AtomString, 8, uint32(len(v)), []byte(v)).Check()
}

// watchDelete asks the window manager to send WM_DELETE_WINDOW instead of
// killing the connection when the window is closed.
func (s *x11Surface) watchDelete() error {
	protocols, err := s.atom("WM_PROTOCOLS")
	if err != nil {
		return err
	}
	del, err := s.atom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	data := make([]byte, 4)
	xgb.Put32(data, uint32(del))
	if err := xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		protocols, xproto.AtomAtom, 32, 1, data).Check(); err != nil {
		return err
	}
	s.wmDelete = del
	return nil
}

func (s *x11Surface) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
