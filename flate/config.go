package flate

import "github.com/sirupsen/logrus"

// Config holds the parameters of a Deflater or Inflater.
type Config struct {
	// Level is DefaultCompression or a level from 0 (stored) to 9. The
	// Inflater ignores it.
	Level int

	Strategy Strategy

	// WindowBits is the base-2 logarithm of the window size, from
	// MinWindowBits to MaxWindowBits. Zero means MaxWindowBits. An Inflater
	// needs a window at least as large as the Deflater that produced the
	// stream.
	WindowBits int

	Format Format

	// Logger receives debug messages. Nil means logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// withDefaults validates c and fills in defaults.
func (c Config) withDefaults() (Config, error) {
	if c.Level == DefaultCompression {
		c.Level = 6
	}
	if c.Level < NoCompression || c.Level > BestCompression {
		return c, invalidParameter("compression level %d out of range [%d, %d]", c.Level, NoCompression, BestCompression)
	}
	if c.WindowBits == 0 {
		c.WindowBits = MaxWindowBits
	}
	if c.WindowBits < MinWindowBits || c.WindowBits > MaxWindowBits {
		return c, invalidParameter("window bits %d out of range [%d, %d]", c.WindowBits, MinWindowBits, MaxWindowBits)
	}
	if c.Strategy < DefaultStrategy || c.Strategy > Fixed {
		return c, invalidParameter("unknown strategy %v", c.Strategy)
	}
	if c.Format != Raw && c.Format != Zlib {
		return c, invalidParameter("unknown format %v", c.Format)
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c, nil
}

func (c Config) fields() logrus.Fields {
	return logrus.Fields{
		"level":      c.Level,
		"strategy":   c.Strategy,
		"windowBits": c.WindowBits,
		"format":     c.Format,
	}
}
