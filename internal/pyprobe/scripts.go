package pyprobe

// Each script prints exactly one JSON document as its last line of stdout.
// Arguments arrive through sys.argv so module names are never spliced into code.

const deviceScript = `
import json
import torch

out = {"available": bool(torch.cuda.is_available()), "cuda_version": torch.version.cuda or "", "devices": []}
if out["available"]:
    out["devices"] = [torch.cuda.get_device_name(i) for i in range(torch.cuda.device_count())]
print(json.dumps(out))
`

const speechScript = `
import importlib
import json
import sys

name, variant, device = sys.argv[1], sys.argv[2], sys.argv[3]
info = {"found": False}


def done(err=None):
    if err is not None:
        info["error"] = "%s: %s" % (type(err).__name__, err)
    print(json.dumps(info))
    sys.exit(0)


try:
    mod = importlib.import_module(name)
except Exception as e:
    done(e)

info["found"] = True
try:
    import importlib.metadata
    info["version"] = importlib.metadata.version(name)
    info["version_source"] = "metadata"
except Exception:
    version = getattr(mod, "__version__", None)
    if version is not None:
        info["version"] = str(version)
        info["version_source"] = "attribute"

info["location"] = getattr(mod, "__file__", "") or ""
try:
    mod.load_model(variant, device=device)
    info["loaded"] = True
except Exception as e:
    done(e)
done()
`

const packagesScript = `
import importlib.metadata
import json

pkgs = []
for dist in importlib.metadata.distributions():
    pkgs.append({"name": dist.metadata["Name"] or "", "version": dist.version or ""})
print(json.dumps(pkgs))
`

const kernelScript = `
import importlib
import json
import sys

name = sys.argv[1]
try:
    mod = importlib.import_module(name)
except ImportError as e:
    print(json.dumps({"missing": True, "error": str(e)}))
    sys.exit(0)

out = {"version": str(getattr(mod, "__version__", ""))}
try:
    backend = importlib.import_module(name + ".backends.cuda")
    out["backend_available"] = bool(backend.is_available())
except Exception as e:
    out["error"] = "%s: %s" % (type(e).__name__, e)
print(json.dumps(out))
`
