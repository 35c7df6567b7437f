package common

import "time"

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvEnvironment      = "ML_SERVICE_ENVIRONMENT"
	EnvHost             = "ML_SERVICE_HOST"
	EnvPort             = "ML_SERVICE_PORT"
	EnvModelsPath       = "ML_MODELS_PATH"
	EnvDataPath         = "DATA_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvModelLoadTimeout = "MODEL_LOAD_TIMEOUT"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvMinModelAccuracy = "MIN_MODEL_ACCURACY"
	EnvJWTAlgorithm     = "JWT_ALGORITHM"
	EnvJWTPrivateKey    = "JWT_PRIVATE_KEY"
	EnvJWTPublicKey     = "JWT_PUBLIC_KEY"
	EnvJWTSecret        = "JWT_SECRET"
	EnvJWTIssuer        = "JWT_ISSUER"
	EnvJWTExpireMinutes = "JWT_EXPIRE_MINUTES"
	EnvRateLimitDefault = "RATE_LIMIT_DEFAULT"
	EnvRateLimitPredict = "RATE_LIMIT_PREDICTIONS"
	EnvRateLimitHealth  = "RATE_LIMIT_HEALTH"
	EnvStreamEnabled    = "STREAM_ENABLED"
	EnvAPIBaseURL       = "TITANIC_API_URL"
	EnvAPIToken         = "TITANIC_API_TOKEN"
	EnvShutdownTimeout  = "SHUTDOWN_TIMEOUT"
)

// Configuration defaults
const (
	DefaultEnvironment         = "development"
	DefaultHost                = "127.0.0.1"
	DefaultPort                = 8000
	DefaultModelsPath          = "models"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultModelLoadTimeout    = 5 * time.Second
	DefaultRequestTimeout      = 10 * time.Second
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultMinModelAccuracy    = 0.7
	DefaultJWTAlgorithm        = "RS256"
	DefaultJWTIssuer           = "titanic-predictor"
	DefaultJWTExpiration       = 60 * time.Minute
	DefaultRateLimitDefault    = "100/minute"
	DefaultRateLimitPredict    = "50/minute"
	DefaultRateLimitHealth     = "200/minute"
	DefaultAPIBaseURL          = "http://127.0.0.1:8000"
	DefaultTestSize            = 0.2
	DefaultRandomSeed          = 42
	DefaultLogisticMaxIter     = 1000
	DefaultTreeMaxDepth        = 10
	DefaultTreeMinSamplesSplit = 20
)

// Artifact file names inside the models directory
const (
	LabelEncodersFile      = "label_encoders.json"
	PreprocessingStatsFile = "preprocessing_stats.json"
	FeatureColumnsFile     = "feature_columns.json"
	LogisticModelFile      = "logistic_model.gob"
	DecisionTreeModelFile  = "decision_tree_model.gob"
	EvaluationResultsFile  = "evaluation_results.json"
)

// Model keys used in responses and evaluation summaries
const (
	ModelLogisticRegression = "logistic_regression"
	ModelDecisionTree       = "decision_tree"
	ModelEnsemble           = "ensemble"
)

// Prediction labels
const (
	LabelSurvived       = "survived"
	LabelDidNotSurvive  = "did_not_survive"
	ConfidenceHigh      = "high"
	ConfidenceMedium    = "medium"
	ConfidenceLow       = "low"
	LoadingModeLazy     = "lazy"
	SurvivalThreshold   = 0.5
	HighConfidenceMin   = 0.8
	MediumConfidenceMin = 0.6
)

// Common error messages
const (
	ErrMsgModelsPathRequired = "models path is required"
	ErrMsgJWTKeysRequired    = "JWT verification material is required (public key for RS256, secret for HS256)"
	ErrMsgNotFitted          = "preprocessor is not fitted; call FitTransform or LoadArtifacts first"
	ErrMsgEmptyDataset       = "dataset is empty"
	ErrMsgMissingLabel       = "dataset lacks the survived label"
)

// Validation constants
const (
	MinPort             = 1024
	MaxPort             = 65535
	MinAge              = 0.0
	MaxAge              = 120.0
	TypicalMaxAge       = 80.0
	MinFare             = 0.0
	MaxFare             = 1000.0
	TypicalMaxFare      = 500.0
	MaxFamilyCount      = 20
	TypicalMaxSibSp     = 8
	TypicalMaxParch     = 9
	MaxStringLength     = 100
	MinTestSize         = 0.05
	MaxTestSize         = 0.5
	MaxModelLoadTimeout = 5 * time.Minute
)
