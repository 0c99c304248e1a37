package main

import (
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// frameSource yields single-channel frames until exhausted.
type frameSource interface {
	// Next returns the next frame, or nil at the end of the sequence.
	Next() (*images.Frame, error)
	Close()
}

// directorySource decodes a directory of "frame-N" stills.
type directorySource struct {
	files     []util.FrameFile
	pos       int
	width     int
	height    int
	thumbnail bool
}

// newDirectorySource decodes frames at width x height, or at the size of the
// first frame when width is 0. Thumbnailing needs the target size up front.
func newDirectorySource(dir string, width, height int, thumbnail bool) (*directorySource, error) {
	if thumbnail && (width <= 0 || height <= 0) {
		return nil, errors.New("thumbnail decoding needs a frame size")
	}
	files, err := util.LoadFrameFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frames in %s", dir)
	}
	return &directorySource{files: files, width: width, height: height, thumbnail: thumbnail}, nil
}

func (s *directorySource) Next() (*images.Frame, error) {
	if s.pos >= len(s.files) {
		return nil, nil
	}
	file := s.files[s.pos]
	s.pos++

	var (
		frame *images.Frame
		err   error
	)
	if s.thumbnail {
		frame, err = images.ThumbnailFrame(file.Data, s.width, s.height)
	} else {
		frame, err = images.DecodeFrame(file.Data, file.Format, s.width, s.height)
	}
	if err != nil {
		log.WithError(err).WithField("path", file.Path).Debug("falling back to OpenCV decoder")
		frame, err = images.DecodeFrameCV(file.Data, s.width, s.height)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", file.Path)
	}

	// Later frames are scaled to the geometry of the first.
	if s.width == 0 {
		s.width, s.height = frame.Width, frame.Height
	}
	return frame, nil
}

func (s *directorySource) Close() {}

// videoSource reads frames from a video file through OpenCV.
type videoSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	width   int
	height  int
}

func newVideoSource(path string, width, height int) (*videoSource, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open video %s", path)
	}
	return &videoSource{capture: capture, mat: gocv.NewMat(), width: width, height: height}, nil
}

func (s *videoSource) Next() (*images.Frame, error) {
	for {
		if ok := s.capture.Read(&s.mat); !ok {
			return nil, nil
		}
		if !s.mat.Empty() {
			break
		}
	}

	frame, err := images.FrameFromMat(s.mat)
	if err != nil {
		return nil, err
	}
	if s.width == 0 {
		s.width, s.height = frame.Width, frame.Height
	} else if frame.Width != s.width || frame.Height != s.height {
		frame = images.FrameFromImage(frame.Gray(), s.width, s.height)
	}
	return frame, nil
}

func (s *videoSource) Close() {
	s.mat.Close()
	s.capture.Close()
}
