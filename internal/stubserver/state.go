package stubserver

import (
	"crypto/sha256"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/facesaas-client/internal/model"
)

var (
	errEmailTaken   = errors.New("Email already registered")
	errInvalidLogin = errors.New("Incorrect email or password")
	errNoUser       = errors.New("User not found")
	errNoImage      = errors.New("Image not found")
	errBadPassword  = errors.New("Current password is incorrect")
)

type account struct {
	id          string
	email       string
	fullName    string
	hash        []byte
	apiKey      string
	threshold   float64
	createdAt   time.Time
	comparisons int
	matches     int
}

type storedImage struct {
	id       string
	owner    string
	fileName string
	size     int64
	faces    []model.FaceDetection
	uploaded time.Time
}

// state is the in-memory backing store of the stub service.
type state struct {
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	images   map[string]*storedImage
	cost     int
	now      func() time.Time
}

func newState(cost int) *state {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &state{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		images:   make(map[string]*storedImage),
		cost:     cost,
		now:      time.Now,
	}
}

func (s *state) register(email, password string) (*account, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return nil, errEmailTaken
	}
	acc := &account{
		id:        uuid.NewString(),
		email:     strings.TrimSpace(email),
		hash:      hash,
		apiKey:    newAPIKey(),
		threshold: model.DefaultThreshold,
		createdAt: s.now().UTC(),
	}
	s.accounts[acc.id] = acc
	s.byEmail[key] = acc.id
	return acc, nil
}

func (s *state) authenticate(email, password string) (*account, error) {
	s.mu.Lock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var hash []byte
	if ok {
		hash = s.accounts[id].hash
	}
	s.mu.Unlock()
	if !ok {
		return nil, errInvalidLogin
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, errInvalidLogin
	}
	return s.account(id)
}

// account returns a copy so callers can read it without the lock.
func (s *state) account(id string) (*account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, errNoUser
	}
	cp := *acc
	return &cp, nil
}

func (s *state) update(id string, fn func(*account) error) (*account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, errNoUser
	}
	if err := fn(acc); err != nil {
		return nil, err
	}
	cp := *acc
	return &cp, nil
}

func (s *state) changeEmail(id, email string) (*account, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, errNoUser
	}
	if other, taken := s.byEmail[key]; taken && other != id {
		return nil, errEmailTaken
	}
	delete(s.byEmail, strings.ToLower(acc.email))
	acc.email = strings.TrimSpace(email)
	s.byEmail[key] = id
	cp := *acc
	return &cp, nil
}

func (s *state) changePassword(id, current, next string) error {
	acc, err := s.account(id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(current)) != nil {
		return errBadPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	_, err = s.update(id, func(a *account) error {
		a.hash = hash
		return nil
	})
	return err
}

func (s *state) deleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return errNoUser
	}
	delete(s.byEmail, strings.ToLower(acc.email))
	delete(s.accounts, id)
	for imageID, img := range s.images {
		if img.owner == id {
			delete(s.images, imageID)
		}
	}
	return nil
}

func (s *state) addImage(owner, fileName string, data []byte) *storedImage {
	img := &storedImage{
		id:       uuid.NewString(),
		owner:    owner,
		fileName: fileName,
		size:     int64(len(data)),
		faces:    detect(data),
		uploaded: s.now().UTC(),
	}
	s.mu.Lock()
	s.images[img.id] = img
	s.mu.Unlock()
	return img
}

func (s *state) image(owner, id string) (*storedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok || img.owner != owner {
		return nil, errNoImage
	}
	return img, nil
}

func (s *state) listImages(owner string) []*storedImage {
	s.mu.Lock()
	out := make([]*storedImage, 0)
	for _, img := range s.images {
		if img.owner == owner {
			out = append(out, img)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].uploaded.Equal(out[j].uploaded) {
			return out[i].id < out[j].id
		}
		return out[i].uploaded.After(out[j].uploaded)
	})
	return out
}

func (s *state) deleteImage(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok || img.owner != owner {
		return errNoImage
	}
	delete(s.images, id)
	return nil
}

func (s *state) recordComparison(owner string, matched bool) {
	_, _ = s.update(owner, func(a *account) error {
		a.comparisons++
		if matched {
			a.matches++
		}
		return nil
	})
}

func (s *state) usage(owner string) (model.UsageStats, error) {
	acc, err := s.account(owner)
	if err != nil {
		return model.UsageStats{}, err
	}
	stats := model.UsageStats{TotalComparisons: acc.comparisons, TotalMatches: acc.matches}
	for _, img := range s.listImages(owner) {
		stats.TotalImages++
		stats.TotalFaces += len(img.faces)
	}
	return stats, nil
}

func newAPIKey() string {
	return "fsk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// detect derives a stable set of faces from the image content, so the same
// bytes always produce the same result.
func detect(data []byte) []model.FaceDetection {
	sum := sha256.Sum256(data)
	count := 1 + int(sum[0])%2
	faces := make([]model.FaceDetection, 0, count)
	for i := 0; i < count; i++ {
		b := sum[1+i*4:]
		width := 80 + float64(b[0]%120)
		height := width * 1.25
		faces = append(faces, model.FaceDetection{
			FaceID: uuid.NewString(),
			BoundingBox: model.BoundingBox{
				X:      float64(int(b[1]) * int(640-width) / 255),
				Y:      float64(int(b[2]) * int(480-height) / 255),
				Width:  width,
				Height: height,
			},
			Confidence: 0.90 + float64(b[3]%10)/100,
			Quality:    0.80 + float64(b[3]%20)/100,
		})
	}
	return faces
}
