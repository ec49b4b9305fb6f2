package ops

// builtinTypes lists the internal operation types the host understands. Each
// is reachable by its lowercase name and by the tool name carrying the
// default tool prefix.
var builtinTypes = []string{
	"CREATE_GAMEOBJECT", "UPDATE_GAMEOBJECT", "DELETE_GAMEOBJECT",
	"SET_TRANSFORM", "ADD_COMPONENT", "UPDATE_COMPONENT", "CREATE_UI",
	"CREATE_TERRAIN", "MODIFY_TERRAIN", "SETUP_CAMERA", "CREATE_VIRTUAL_CAMERA",
	"CREATE_FREELOOK_CAMERA", "SETUP_CINEMACHINE_BRAIN",
	"UPDATE_VIRTUAL_CAMERA", "CREATE_DOLLY_TRACK", "ADD_COLLIDER_EXTENSION",
	"ADD_CONFINER_EXTENSION", "CREATE_STATE_DRIVEN_CAMERA",
	"CREATE_CLEAR_SHOT_CAMERA", "CREATE_IMPULSE_SOURCE", "ADD_IMPULSE_LISTENER",
	"CREATE_BLEND_LIST_CAMERA", "CREATE_TARGET_GROUP", "ADD_TARGET_TO_GROUP",
	"SET_CAMERA_PRIORITY", "SET_CAMERA_ENABLED", "CREATE_MIXING_CAMERA",
	"UPDATE_CAMERA_TARGET", "UPDATE_BRAIN_BLEND_SETTINGS",
	"GET_ACTIVE_CAMERA_INFO", "PLACE_OBJECTS", "SETUP_LIGHTING",
	"CREATE_MATERIAL", "CREATE_PREFAB", "CREATE_SCRIPT", "MANAGE_SCENE",
	"CREATE_ANIMATION", "SETUP_PHYSICS", "CREATE_PARTICLE_SYSTEM",
	"CREATE_VFX_GRAPH", "CREATE_SHADER_GRAPH", "SETUP_POST_PROCESSING",
	"SETUP_LIGHTING_SCENARIOS", "SET_VFX_PROPERTY", "GET_VFX_PROPERTIES",
	"TRIGGER_VFX_EVENT", "VFX_CREATE", "VFX_ADD_CONTEXT", "VFX_ADD_BLOCK",
	"VFX_ADD_OPERATOR", "VFX_LINK_CONTEXTS", "VFX_GET_STRUCTURE", "VFX_COMPILE",
	"VFX_GET_AVAILABLE_TYPES", "VFX_ADD_PARAMETER", "VFX_CONNECT_SLOTS",
	"VFX_SET_ATTRIBUTE", "VFX_CREATE_PRESET", "SETUP_NAVMESH",
	"CREATE_AUDIO_MIXER", "GET_OPERATION_HISTORY", "UNDO_OPERATION",
	"REDO_OPERATION", "CREATE_CHECKPOINT", "RESTORE_CHECKPOINT",
	"MONITOR_PLAY_STATE", "MONITOR_FILE_CHANGES", "MONITOR_COMPILE",
	"SUBSCRIBE_EVENTS", "GET_EVENTS", "GET_MONITORING_STATUS",
	"GET_BUILD_SETTINGS", "GET_PLAYER_SETTINGS", "GET_QUALITY_SETTINGS",
	"GET_INPUT_SETTINGS", "GET_PHYSICS_SETTINGS", "GET_PROJECT_SUMMARY",
	"GET_SCENE_INFO", "CAPTURE_GAME_VIEW", "CAPTURE_SCENE_VIEW",
	"CAPTURE_REGION", "FORCE_REFRESH_ASSETS", "INVOKE_CONTEXT_MENU",
	"GET_INSPECTOR_INFO", "GET_SELECTED_OBJECT_INFO", "GET_COMPONENT_DETAILS",
	"LIST_ASSETS", "CHECK_FOLDER", "CREATE_FOLDER", "LIST_FOLDERS",
	"DUPLICATE_GAMEOBJECT", "FIND_BY_COMPONENT", "CLEANUP_EMPTY_OBJECTS",
	"GROUP_GAMEOBJECTS", "RENAME_ASSET", "MOVE_ASSET", "DELETE_ASSET",
	"PAUSE_SCENE", "OPTIMIZE_TEXTURES_BATCH", "ANALYZE_DRAW_CALLS",
	"CREATE_PROJECT_SNAPSHOT", "ANALYZE_DEPENDENCIES",
	"EXPORT_PROJECT_STRUCTURE", "VALIDATE_NAMING_CONVENTIONS",
	"EXTRACT_ALL_TEXT", "BATCH_RENAME", "BATCH_IMPORT_SETTINGS",
	"BATCH_PREFAB_UPDATE", "FIND_UNUSED_ASSETS", "ESTIMATE_BUILD_SIZE",
	"PERFORMANCE_REPORT", "AUTO_ORGANIZE_FOLDERS", "GENERATE_LOD",
	"AUTO_ATLAS_TEXTURES", "CREATE_GAME_CONTROLLER", "SETUP_INPUT_SYSTEM",
	"CREATE_STATE_MACHINE", "SETUP_INVENTORY_SYSTEM", "CREATE_GAME_TEMPLATE",
	"QUICK_PROTOTYPE", "SETUP_ML_AGENT", "CREATE_NEURAL_NETWORK",
	"SETUP_BEHAVIOR_TREE", "CREATE_AI_PATHFINDING", "MODIFY_SCRIPT",
	"EDIT_SCRIPT_LINE", "ADD_SCRIPT_METHOD", "UPDATE_SCRIPT_VARIABLE",
	"CONTROL_GAME_SPEED", "PROFILE_PERFORMANCE", "DEBUG_DRAW",
	"RUN_UNITY_TESTS", "MANAGE_BREAKPOINTS", "CREATE_ANIMATOR_CONTROLLER",
	"ADD_ANIMATION_STATE", "CREATE_ANIMATION_CLIP", "SETUP_BLEND_TREE",
	"ADD_ANIMATION_TRANSITION", "SETUP_ANIMATION_LAYER",
	"CREATE_ANIMATION_EVENT", "SETUP_AVATAR", "CREATE_TIMELINE",
	"BAKE_ANIMATION", "SEARCH_OBJECTS", "CONSOLE_OPERATION",
	"ANALYZE_CONSOLE_LOGS", "GREP_SCRIPTS", "READ_SCRIPT_RANGE", "SEARCH_CODE",
	"LIST_SCRIPT_FILES", "LOAD_SCENE", "UNLOAD_SCENE", "SET_ACTIVE_SCENE",
	"LIST_ALL_SCENES", "ADD_SCENE_TO_BUILD", "SEARCH_PREFABS_BY_COMPONENT",
	"FIND_MATERIAL_USAGE", "FIND_TEXTURE_USAGE", "GET_ASSET_DEPENDENCIES",
	"FIND_MISSING_REFERENCES", "UNDO", "REDO", "GET_HISTORY", "GET_CAMERA_INFO",
	"GET_TERRAIN_INFO", "GET_LIGHTING_INFO", "GET_MATERIAL_INFO", "GET_UI_INFO",
	"GET_PHYSICS_INFO", "GET_GAMEOBJECT_DETAILS", "GET_PROJECT_STATS",
}

// irregularAliases are external names that do not follow the lowercase
// pattern.
var irregularAliases = map[string]string{
	"find_gameobjects_by_component":       "FIND_BY_COMPONENT",
	"unity_console":                       "CONSOLE_OPERATION",
	"unity_find_gameobjects_by_component": "FIND_BY_COMPONENT",
	"unity_list_project_assets":           "LIST_ASSETS",
	"unity_run_tests":                     "RUN_UNITY_TESTS",
	"unity_search":                        "SEARCH_OBJECTS",
}
