// Package stubserver is an in-memory implementation of the face service
// API for local development and end-to-end tests.
package stubserver

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/model"
)

// MaxUploadSize is the largest image accepted by the upload routes.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and the other form fields.
const multipartOverhead = 1 << 20

// Options configures the stub service.
type Options struct {
	Secret   string
	TokenTTL time.Duration
	// Similarity is the score reported by every comparison. Zero means 85.2.
	Similarity float64
	// BasePath prefixes every route. Empty means /api/v1; use "/" for none.
	BasePath string
	// BcryptCost of zero means bcrypt.DefaultCost.
	BcryptCost int
	Logger     *zap.Logger
}

// Server serves the face service routes from memory.
type Server struct {
	auth       *Authenticator
	state      *state
	similarity float64
	basePath   string
	logger     *zap.Logger
}

// New builds a stub service.
func New(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = "dev-secret"
	}
	if opts.Similarity == 0 {
		opts.Similarity = 85.2
	}
	switch opts.BasePath {
	case "":
		opts.BasePath = "/api/v1"
	case "/":
		opts.BasePath = ""
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		auth:       NewAuthenticator(opts.Secret, opts.TokenTTL),
		state:      newState(opts.BcryptCost),
		similarity: opts.Similarity,
		basePath:   strings.TrimRight(opts.BasePath, "/"),
		logger:     opts.Logger.Named("stubserver"),
	}
}

// Handler returns a gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())
	router.MaxMultipartMemory = MaxUploadSize
	s.RegisterRoutes(router)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	api := router.Group(s.basePath)

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	protected := api.Group("", s.auth.Middleware())

	protected.POST("/images/upload", s.uploadImage)
	protected.GET("/images/my-images", s.listImages)
	protected.DELETE("/images/:id", s.deleteImage)

	protected.POST("/faces/detect", s.detectFaces)
	protected.POST("/faces/compare", s.compareFaces)
	protected.POST("/faces/verify", s.verifyFaces)

	protected.GET("/users/profile", s.profile)
	protected.PATCH("/users/profile", s.updateProfile)
	protected.PUT("/users/profile", s.updateProfile)
	protected.DELETE("/users/profile", s.deleteAccount)
	protected.PATCH("/users/threshold", s.updateThreshold)
	protected.POST("/users/change-password", s.changePassword)
	protected.GET("/users/usage", s.usage)
	protected.GET("/users/api-key", s.apiKey)
	protected.POST("/users/api-key/regenerate", s.regenerateAPIKey)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) register(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	if email == "" || password == "" {
		validationError(c, "email and password are required")
		return
	}
	if len(password) < 6 {
		validationError(c, "password must have at least 6 characters")
		return
	}
	acc, err := s.state.register(email, password)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			detail(c, http.StatusBadRequest, err.Error())
			return
		}
		detail(c, http.StatusInternalServerError, "failed to create account")
		return
	}
	s.issue(c, acc.id)
}

func (s *Server) login(c *gin.Context) {
	acc, err := s.state.authenticate(c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		detail(c, http.StatusUnauthorized, err.Error())
		return
	}
	s.issue(c, acc.id)
}

func (s *Server) issue(c *gin.Context, subject string) {
	token, err := s.auth.Issue(subject)
	if err != nil {
		detail(c, http.StatusInternalServerError, "failed to issue token")
		return
	}
	c.JSON(http.StatusOK, model.Token{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) uploadImage(c *gin.Context) {
	owner := userID(c)
	header, data, ok := readImage(c, "file")
	if !ok {
		return
	}
	img := s.state.addImage(owner, header.Filename, data)
	uploaded := img.uploaded
	c.JSON(http.StatusOK, model.UploadResult{
		ImageID:    img.id,
		FileName:   img.fileName,
		FileURL:    "/files/" + img.id,
		StorageKey: owner + "/" + img.id,
		FaceCount:  len(img.faces),
		Faces:      img.faces,
		UploadTime: &uploaded,
	})
}

func (s *Server) listImages(c *gin.Context) {
	owner := userID(c)
	images := s.state.listImages(owner)
	records := make([]model.ImageRecord, 0, len(images))
	for _, img := range images {
		uploaded := img.uploaded
		records = append(records, model.ImageRecord{
			ID:         img.id,
			FileName:   img.fileName,
			FileSize:   img.size,
			StorageKey: owner + "/" + img.id,
			FaceCount:  len(img.faces),
			Faces:      img.faces,
			UploadTime: &uploaded,
		})
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) deleteImage(c *gin.Context) {
	if err := s.state.deleteImage(userID(c), c.Param("id")); err != nil {
		detail(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, model.StatusMessage{Message: "Image deleted successfully"})
}

func (s *Server) detectFaces(c *gin.Context) {
	_, data, ok := readImage(c, "image")
	if !ok {
		return
	}
	faces := detect(data)
	c.JSON(http.StatusOK, model.DetectionResult{FaceCount: len(faces), Faces: faces})
}

func (s *Server) compareFaces(c *gin.Context) {
	owner := userID(c)
	_, first, ok := readImage(c, "image1")
	if !ok {
		return
	}
	_, second, ok := readImage(c, "image2")
	if !ok {
		return
	}
	threshold, ok := s.threshold(c, owner, c.PostForm("threshold"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.compare(owner, detect(first), detect(second), threshold))
}

func (s *Server) verifyFaces(c *gin.Context) {
	owner := userID(c)
	var req model.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image1ID == "" || req.Image2ID == "" {
		validationError(c, "image1_id and image2_id are required")
		return
	}
	first, err := s.state.image(owner, req.Image1ID)
	if err != nil {
		detail(c, http.StatusNotFound, err.Error())
		return
	}
	second, err := s.state.image(owner, req.Image2ID)
	if err != nil {
		detail(c, http.StatusNotFound, err.Error())
		return
	}
	raw := ""
	if req.Threshold != nil {
		raw = strconv.FormatFloat(*req.Threshold, 'f', -1, 64)
	}
	threshold, ok := s.threshold(c, owner, raw)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.compare(owner, first.faces, second.faces, threshold))
}

// threshold resolves the request threshold, defaulting to the account's.
func (s *Server) threshold(c *gin.Context, owner, raw string) (float64, bool) {
	if raw == "" {
		acc, err := s.state.account(owner)
		if err != nil {
			detail(c, http.StatusNotFound, err.Error())
			return 0, false
		}
		return acc.threshold, true
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 || value > 100 {
		validationError(c, "threshold must be between 0 and 100")
		return 0, false
	}
	return value, true
}

func (s *Server) compare(owner string, first, second []model.FaceDetection, threshold float64) model.ComparisonResult {
	result := model.ComparisonResult{
		SimilarityScore:     s.similarity,
		ThresholdUsed:       threshold,
		MatchStatus:         model.StatusFor(s.similarity, threshold),
		ProbeConfidence:     bestConfidence(first),
		CandidateConfidence: bestConfidence(second),
	}
	s.state.recordComparison(owner, result.MatchStatus == model.Match)
	return result
}

func (s *Server) profile(c *gin.Context) {
	acc, err := s.state.account(userID(c))
	if err != nil {
		detail(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, profileOf(acc))
}

func (s *Server) updateProfile(c *gin.Context) {
	owner := userID(c)
	var upd model.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		validationError(c, "invalid profile update")
		return
	}
	var (
		acc *account
		err error
	)
	if upd.Email != nil {
		if strings.TrimSpace(*upd.Email) == "" {
			validationError(c, "email cannot be empty")
			return
		}
		if acc, err = s.state.changeEmail(owner, *upd.Email); err != nil {
			s.accountError(c, err)
			return
		}
	}
	if upd.FullName != nil {
		name := *upd.FullName
		if acc, err = s.state.update(owner, func(a *account) error {
			a.fullName = name
			return nil
		}); err != nil {
			s.accountError(c, err)
			return
		}
	}
	if acc == nil {
		if acc, err = s.state.account(owner); err != nil {
			s.accountError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, profileOf(acc))
}

func (s *Server) updateThreshold(c *gin.Context) {
	var body struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Threshold == nil {
		validationError(c, "threshold is required")
		return
	}
	value := *body.Threshold
	if value < 0 || value > 100 {
		validationError(c, "threshold must be between 0 and 100")
		return
	}
	if _, err := s.state.update(userID(c), func(a *account) error {
		a.threshold = value
		return nil
	}); err != nil {
		s.accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ThresholdUpdate{Message: "Threshold updated successfully", NewThreshold: value})
}

func (s *Server) changePassword(c *gin.Context) {
	var body model.PasswordChange
	if err := c.ShouldBindJSON(&body); err != nil || body.CurrentPassword == "" || body.NewPassword == "" {
		validationError(c, "current_password and new_password are required")
		return
	}
	if len(body.NewPassword) < 6 {
		validationError(c, "password must have at least 6 characters")
		return
	}
	if err := s.state.changePassword(userID(c), body.CurrentPassword, body.NewPassword); err != nil {
		s.accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusMessage{Message: "Password changed successfully"})
}

func (s *Server) deleteAccount(c *gin.Context) {
	if err := s.state.deleteAccount(userID(c)); err != nil {
		s.accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusMessage{Message: "Account deleted successfully"})
}

func (s *Server) usage(c *gin.Context) {
	stats, err := s.state.usage(userID(c))
	if err != nil {
		s.accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) apiKey(c *gin.Context) {
	acc, err := s.state.account(userID(c))
	if err != nil {
		s.accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.APIKey{APIKey: acc.apiKey})
}

func (s *Server) regenerateAPIKey(c *gin.Context) {
	acc, err := s.state.update(userID(c), func(a *account) error {
		a.apiKey = newAPIKey()
		return nil
	})
	if err != nil {
		s.accountError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.APIKey{APIKey: acc.apiKey})
}

func (s *Server) accountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNoUser):
		detail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, errEmailTaken), errors.Is(err, errBadPassword):
		detail(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("account operation failed", zap.Error(err))
		detail(c, http.StatusInternalServerError, "internal server error")
	}
}

// readImage reads one image part. It answers 413 for oversized files and
// 415 for non-image content and reports false when it has responded.
func readImage(c *gin.Context, field string) (*multipart.FileHeader, []byte, bool) {
	if c.Request.Body != nil && c.Request.ContentLength != 0 && !bodyLimited(c) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*MaxUploadSize+multipartOverhead)
		c.Set(bodyLimitKey, true)
	}
	file, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			detail(c, http.StatusRequestEntityTooLarge, "file too large")
			return nil, nil, false
		}
		validationError(c, field+" file is required")
		return nil, nil, false
	}
	if file.Size > MaxUploadSize {
		detail(c, http.StatusRequestEntityTooLarge, "file too large")
		return nil, nil, false
	}
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		detail(c, http.StatusUnsupportedMediaType, "File must be an image")
		return nil, nil, false
	}

	src, err := file.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, "unable to open image")
		return nil, nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		detail(c, http.StatusInternalServerError, "failed to read image")
		return nil, nil, false
	}
	return file, data, true
}

const bodyLimitKey = "bodyLimited"

func bodyLimited(c *gin.Context) bool {
	return c.GetBool(bodyLimitKey)
}

func userID(c *gin.Context) string {
	id, _ := GetUserID(c.Request.Context())
	return id
}

func profileOf(acc *account) model.Profile {
	created := acc.createdAt
	return model.Profile{
		ID:        acc.id,
		Email:     acc.email,
		APIKey:    acc.apiKey,
		Threshold: acc.threshold,
		CreatedAt: &created,
	}
}

func bestConfidence(faces []model.FaceDetection) float64 {
	var best float64
	for _, f := range faces {
		best = max(best, f.Confidence)
	}
	return best
}

func detail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}

// validationError mirrors the list form of validation details.
func validationError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
		"detail": []gin.H{{"msg": message, "type": "value_error"}},
	})
}
