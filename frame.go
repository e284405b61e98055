package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"midiseq/midi"
	"midiseq/track"
)

var frameOpts struct {
	track int
	start int64
	len   int64
	by    int
	clip  string
	dev   uint8
}

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Edit a track of a standard MIDI file",
	Long: `Frame operations cut, copy and shift time ranges of a track without
leaving notes or controllers hanging at the edges. Positions are ticks of
the file's resolution.`,
}

// editCmd builds a subcommand reading IN, applying fn to the selected
// track and writing OUT
func editCmd(use, short string, fn func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " IN OUT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctls := midi.DefaultCtlTable()
			s, err := track.ReadSMFFile(args[0], frameOpts.dev, ctls)
			if err != nil {
				return err
			}
			t, err := s.Track(frameOpts.track)
			if err != nil {
				return err
			}
			if err := fn(s, t, ctls); err != nil {
				return err
			}
			return track.WriteSMFFile(args[1], s)
		},
	}
}

// writeClip saves a removed or copied range as a one-track file
func writeClip(s *track.Song, clip *track.Track) error {
	if frameOpts.clip == "" {
		return nil
	}
	return track.WriteSMFFile(frameOpts.clip, &track.Song{TPQ: s.TPQ, Tracks: []*track.Track{clip}})
}

func checkRange() error {
	if frameOpts.start < 0 || frameOpts.len < 0 {
		return fmt.Errorf("bad range %d+%d", frameOpts.start, frameOpts.len)
	}
	return nil
}

var frameCutCmd = editCmd("cut", "Remove a range and shift the rest back",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		if err := checkRange(); err != nil {
			return err
		}
		return writeClip(s, track.Cut(t, frameOpts.start, frameOpts.len, ctls))
	})

var frameExtractCmd = editCmd("extract", "Remove a range, leaving a gap",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		if err := checkRange(); err != nil {
			return err
		}
		return writeClip(s, track.Extract(t, frameOpts.start, frameOpts.len, ctls))
	})

var frameEraseCmd = editCmd("erase", "Silence a range in place",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		if err := checkRange(); err != nil {
			return err
		}
		track.Erase(t, frameOpts.start, frameOpts.len, ctls)
		return nil
	})

var frameInsertCmd = editCmd("insert", "Insert blank time at a position",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		if err := checkRange(); err != nil {
			return err
		}
		track.Insert(t, frameOpts.start, frameOpts.len)
		return nil
	})

var frameBlankCmd = editCmd("blank", "Insert silence, holding sounding frames",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		if err := checkRange(); err != nil {
			return err
		}
		track.Blank(t, frameOpts.start, frameOpts.len)
		return nil
	})

var frameTransposeCmd = editCmd("transpose", "Shift notes by halftones",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		track.Transpose(t, frameOpts.by)
		return nil
	})

var frameUniqCmd = editCmd("uniq", "Drop continuation events repeating their value",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		fmt.Println(track.Uniq(t, ctls), "events removed")
		return nil
	})

var framePasteCmd = editCmd("paste", "Merge the clip file at a position",
	func(s *track.Song, t *track.Track, ctls *midi.CtlTable) error {
		if frameOpts.clip == "" {
			return fmt.Errorf("paste needs --clip")
		}
		c, err := track.ReadSMFFile(frameOpts.clip, frameOpts.dev, ctls)
		if err != nil {
			return err
		}
		src, err := c.Track(0)
		if err != nil {
			return err
		}
		track.Merge(t, src, frameOpts.start)
		return nil
	})

var frameCopyCmd = &cobra.Command{
	Use:   "copy IN CLIP",
	Short: "Copy a range into a one-track file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkRange(); err != nil {
			return err
		}
		ctls := midi.DefaultCtlTable()
		s, err := track.ReadSMFFile(args[0], frameOpts.dev, ctls)
		if err != nil {
			return err
		}
		t, err := s.Track(frameOpts.track)
		if err != nil {
			return err
		}
		clip := track.Copy(t, frameOpts.start, frameOpts.len, ctls)
		return track.WriteSMFFile(args[1], &track.Song{TPQ: s.TPQ, Tracks: []*track.Track{clip}})
	},
}

var frameMatchCmd = &cobra.Command{
	Use:   "match IN SPEC",
	Short: "Count the frames matching an event spec",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := midi.ParseSpec(args[1])
		if err != nil {
			return err
		}
		ctls := midi.DefaultCtlTable()
		s, err := track.ReadSMFFile(args[0], frameOpts.dev, ctls)
		if err != nil {
			return err
		}
		t, err := s.Track(frameOpts.track)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), track.Match(t, spec, ctls))
		return nil
	},
}

func init() {
	pf := frameCmd.PersistentFlags()
	pf.IntVarP(&frameOpts.track, "track", "t", 0, "track number")
	pf.Int64Var(&frameOpts.start, "start", 0, "first tick of the range")
	pf.Int64Var(&frameOpts.len, "len", 0, "length of the range in ticks")
	pf.StringVar(&frameOpts.clip, "clip", "", "file receiving the removed range, or pasted from")
	pf.Uint8Var(&frameOpts.dev, "dev", 0, "device unit given to the events")
	frameTransposeCmd.Flags().IntVar(&frameOpts.by, "by", 0, "halftones")

	frameCmd.AddCommand(frameCutCmd, frameCopyCmd, frameExtractCmd, frameEraseCmd,
		frameInsertCmd, frameBlankCmd, frameTransposeCmd, frameUniqCmd, framePasteCmd, frameMatchCmd)
}
